package health

import (
	"context"
	"database/sql"
	"time"
)

// Service encapsulates health-related checks.
type Service struct {
	AppName string
	Version string
	Env     string
	DB      *sql.DB
}

// NewService constructs a new health service. db may be nil when the app runs
// on in-memory repositories.
func NewService(appName, version, env string, db *sql.DB) *Service {
	return &Service{AppName: appName, Version: version, Env: env, DB: db}
}

// Status returns the health payload and whether every dependency is up.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	out := map[string]any{
		"ok":          true,
		"app":         s.AppName,
		"version":     s.Version,
		"environment": s.Env,
		"database":    "memory",
	}
	if s.DB == nil {
		return out, true
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		out["ok"] = false
		out["database"] = "unavailable"
		return out, false
	}
	out["database"] = "ok"
	return out, true
}
