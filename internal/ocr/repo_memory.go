package ocr

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Result // documentID -> result
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Result)}
}

// Upsert stores or replaces the result for a document.
func (r *MemoryRepo) Upsert(ctx context.Context, res Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := r.data[res.DocumentID]; ok {
		res.CreatedAt = prev.CreatedAt
	} else if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	res.HTMLTables = append([]string(nil), res.HTMLTables...)
	r.data[res.DocumentID] = res
	return nil
}

// Get returns the result for a document owned by userID.
func (r *MemoryRepo) Get(ctx context.Context, userID, documentID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.data[documentID]
	if !ok || res.UserID != userID {
		return Result{}, ErrNotFound
	}
	res.HTMLTables = append([]string(nil), res.HTMLTables...)
	return res, nil
}

var _ Repo = (*MemoryRepo)(nil)
