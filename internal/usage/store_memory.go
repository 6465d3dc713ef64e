package usage

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps counters in process for dev runs without a database.
type memoryStore struct {
	mu       sync.Mutex
	rows     map[string]Usage
	defaults Defaults
}

func newMemoryStore(defaults Defaults) *memoryStore {
	return &memoryStore{
		rows:     make(map[string]Usage),
		defaults: defaults.normalized(),
	}
}

func (s *memoryStore) EnsurePeriod(ctx context.Context, userID string, now time.Time) (Usage, error) {
	return s.update(ctx, userID, now, nil)
}

func (s *memoryStore) Increment(ctx context.Context, userID string, now time.Time) (Usage, error) {
	return s.update(ctx, userID, now, func(u *Usage) {
		u.DocumentsProcessedThisMonth++
	})
}

func (s *memoryStore) Reset(ctx context.Context, userID string, now time.Time) (Usage, error) {
	return s.update(ctx, userID, now, func(u *Usage) {
		u.DocumentsProcessedThisMonth = 0
		u.UsageResetDate = NextResetDate(now)
	})
}

// update loads or creates the row, applies the lazy rollover, then mutate,
// all under one lock.
func (s *memoryStore) update(ctx context.Context, userID string, now time.Time, mutate func(*Usage)) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[userID]
	if !ok {
		u = s.defaults.newUsage(now)
	}
	u, _ = u.rollover(now)
	if mutate != nil {
		mutate(&u)
	}
	s.rows[userID] = u
	return u, nil
}
