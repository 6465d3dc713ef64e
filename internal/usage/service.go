package usage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type store interface {
	EnsurePeriod(ctx context.Context, userID string, now time.Time) (Usage, error)
	Increment(ctx context.Context, userID string, now time.Time) (Usage, error)
	Reset(ctx context.Context, userID string, now time.Time) (Usage, error)
}

// Service manages monthly document counters via an underlying store.
type Service struct {
	store store
	now   func() time.Time
}

// NewService constructs a Service with an in-memory store.
func NewService(defaults Defaults) *Service {
	return &Service{store: newMemoryStore(defaults), now: utcNow}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(db *sql.DB, defaults Defaults) *Service {
	return &Service{store: newPGStore(db, defaults), now: utcNow}
}

func utcNow() time.Time { return time.Now().UTC() }

// Get returns the current counter, applying the lazy monthly reset.
func (s *Service) Get(ctx context.Context, userID string) (Usage, error) {
	if strings.TrimSpace(userID) == "" {
		return Usage{}, ErrUserRequired
	}
	return s.store.EnsurePeriod(ctx, userID, s.now())
}

// CanUpload reports whether the user is under the monthly limit.
func (s *Service) CanUpload(ctx context.Context, userID string) (bool, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.CanUpload(), nil
}

// Increment adds one processed document. It does not check the limit.
func (s *Service) Increment(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	_, err := s.store.Increment(ctx, userID, s.now())
	return err
}

// Reset zeroes the counter and starts a fresh period.
func (s *Service) Reset(ctx context.Context, userID string) (Usage, error) {
	if strings.TrimSpace(userID) == "" {
		return Usage{}, ErrUserRequired
	}
	return s.store.Reset(ctx, userID, s.now())
}
