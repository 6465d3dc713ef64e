package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/server/respond"
	"stackdocs-backend/internal/shared/telemetry"
)

// Recovery turns handler panics into a 500 envelope. The panic is logged
// with its stack and recorded on the active span.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			metrics.IncHTTPPanic()

			panicErr := fmt.Errorf("panic: %v", rec)
			span := trace.SpanFromContext(c.Request.Context())
			span.RecordError(panicErr)
			span.SetStatus(codes.Error, "panic")

			telemetry.Error("http.panic", map[string]any{
				"request_id": RequestIDFromContext(c),
				"user_id":    UserIDFromContext(c),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
				"panic":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Internal(c, "Unexpected server error", panicErr)
		}()
		c.Next()
	}
}
