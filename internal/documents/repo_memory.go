package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of DocumentsRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document // documentID -> document
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	doc.Tags = append([]string(nil), doc.Tags...)
	r.data[doc.ID] = doc
	return nil
}

// GetByID returns a document by ID for a user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[documentID]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	doc.Tags = append([]string(nil), doc.Tags...)
	return doc, nil
}

// ListByUser returns documents for a user, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	docs := make([]Document, 0)
	for _, doc := range r.data {
		if doc.UserID == userID {
			docs = append(docs, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

// UpdateStatus sets the lifecycle status.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, userID, documentID string, status Status) error {
	return r.mutate(ctx, userID, documentID, func(doc *Document) { doc.Status = status })
}

// UpdateStage sets the pipeline stage.
func (r *MemoryRepo) UpdateStage(ctx context.Context, userID, documentID string, stage Stage) error {
	return r.mutate(ctx, userID, documentID, func(doc *Document) { doc.PipelineStage = stage })
}

// SetSessionID records the agent session used to extract the document.
func (r *MemoryRepo) SetSessionID(ctx context.Context, userID, documentID, sessionID string) error {
	return r.mutate(ctx, userID, documentID, func(doc *Document) { doc.SessionID = sessionID })
}

// UpdateMetadata stores the generated display name, tags and summary.
func (r *MemoryRepo) UpdateMetadata(ctx context.Context, userID, documentID string, meta Metadata) error {
	return r.mutate(ctx, userID, documentID, func(doc *Document) {
		doc.DisplayName = meta.DisplayName
		doc.Tags = append([]string(nil), meta.Tags...)
		doc.Summary = meta.Summary
	})
}

func (r *MemoryRepo) mutate(ctx context.Context, userID, documentID string, fn func(*Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.UserID != userID {
		return ErrNotFound
	}
	fn(&doc)
	doc.UpdatedAt = r.now()
	r.data[documentID] = doc
	return nil
}

var _ DocumentsRepo = (*MemoryRepo)(nil)
