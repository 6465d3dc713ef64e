package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
)

const (
	documentIDKey   = "documentId"
	extractionIDKey = "extractionId"
	transitionKey   = "statusTransition"
)

// TagDocument attaches a document id to the request log line.
func TagDocument(c *gin.Context, id string) { c.Set(documentIDKey, id) }

// TagExtraction attaches an extraction id to the request log line.
func TagExtraction(c *gin.Context, id string) { c.Set(extractionIDKey, id) }

// TagTransition records the status a handler moved a resource to.
func TagTransition(c *gin.Context, status string) { c.Set(transitionKey, status) }

// Logging emits one request.complete line per request and counts it by
// route. Preflights are skipped.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		route := c.FullPath()
		metrics.IncHTTPRequest(route, status)

		fields := map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             route,
			"status":            status,
			"status_transition": c.GetString(transitionKey),
			"duration_ms":       float64(time.Since(start).Microseconds()) / 1000.0,
			"user_id":           UserIDFromContext(c),
			"document_id":       c.GetString(documentIDKey),
			"extraction_id":     c.GetString(extractionIDKey),
			"is_guest":          c.GetBool(isGuestKey),
			"client_ip":         c.ClientIP(),
			"bytes_out":         c.Writer.Size(),
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if status >= http.StatusInternalServerError {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
