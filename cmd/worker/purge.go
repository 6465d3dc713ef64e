package main

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/shared/telemetry"
)

// startSessionPurge deletes expired agent sessions every interval.
func startSessionPurge(store agent.SessionStore, interval time.Duration) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(interval).Tag("session-purge").Do(purgeSessions, store); err != nil {
		return nil, err
	}
	s.StartAsync()
	return s, nil
}

func purgeSessions(store agent.SessionStore) int64 {
	if store == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := store.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		telemetry.Error("worker.session_purge.failed", map[string]any{"error": err.Error()})
		return 0
	}
	if removed > 0 {
		telemetry.Info("worker.session_purge.completed", map[string]any{"removed": removed})
	}
	return removed
}
