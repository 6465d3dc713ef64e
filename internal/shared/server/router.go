package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/services/health"
	"stackdocs-backend/internal/shared/auth"
	"stackdocs-backend/internal/shared/config"
	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/server/middleware"
	"stackdocs-backend/internal/shared/server/respond"
	"stackdocs-backend/internal/usage"
	"stackdocs-backend/internal/workflows"
)

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config      config.Config
	Verifier    *auth.Verifier
	Health      *health.Service
	Documents   *documents.Handler
	Extractions *extractions.Handler
	Usage       *usage.Handler
	Workflows   *workflows.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.ServiceName),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		status, ok := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.Use(
		middleware.Auth(deps.Verifier, cfg.Env != "production"),
		middleware.RateLimit(rateLimitConfig(cfg)),
	)
	api.GET("/me", meHandler)
	if deps.Documents != nil {
		deps.Documents.RegisterRoutes(api)
	}
	if deps.Extractions != nil {
		deps.Extractions.RegisterRoutes(api)
	}
	if deps.Workflows != nil {
		deps.Workflows.RegisterRoutes(api)
	}
	if deps.Usage != nil {
		deps.Usage.RegisterRoutes(api)
		if cfg.IsDevLike() {
			deps.Usage.RegisterDevRoutes(api.Group("/dev"))
		}
	}

	return r
}

// rateLimitConfig gives status polling a looser bucket than writes and agent
// runs.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	base := middleware.RateLimitRule{Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	return middleware.RateLimitConfig{
		Classify: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return middleware.ClassPolling
			}
			return middleware.ClassDefault
		},
		Rules: map[string]middleware.RateLimitRule{
			middleware.ClassDefault: base,
			middleware.ClassPolling: {Rate: base.Rate * 4, Burst: base.Burst * 2},
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
