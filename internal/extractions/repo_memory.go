package extractions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stackdocs-backend/internal/jsonpath"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Extraction // extractionID -> extraction
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Extraction),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Create(ctx context.Context, ext Extraction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ext.CreatedAt.IsZero() {
		ext.CreatedAt = r.now()
	}
	if ext.UpdatedAt.IsZero() {
		ext.UpdatedAt = ext.CreatedAt
	}
	if ext.Status == "" {
		ext.Status = StatusInProgress
	}
	stored, err := clone(ext)
	if err != nil {
		return err
	}
	r.data[ext.ID] = stored
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, userID, extractionID string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.data[extractionID]
	if !ok || ext.UserID != userID {
		return Extraction{}, ErrNotFound
	}
	return clone(ext)
}

func (r *MemoryRepo) LatestForDocument(ctx context.Context, userID, documentID string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		latest Extraction
		found  bool
	)
	for _, ext := range r.data {
		if ext.UserID != userID || ext.DocumentID != documentID {
			continue
		}
		if !found || ext.CreatedAt.After(latest.CreatedAt) {
			latest = ext
			found = true
		}
	}
	if !found {
		return Extraction{}, ErrNotFound
	}
	return clone(latest)
}

func (r *MemoryRepo) ReplaceFields(ctx context.Context, userID, extractionID string, fields map[string]any, confidences map[string]float64) error {
	fieldsCopy, err := cloneFields(fields)
	if err != nil {
		return err
	}
	return r.mutate(ctx, userID, extractionID, func(ext *Extraction) error {
		ext.ExtractedFields = fieldsCopy
		ext.ConfidenceScores = make(map[string]float64, len(confidences))
		for k, v := range confidences {
			ext.ConfidenceScores[k] = v
		}
		ext.Status = StatusInProgress
		return nil
	})
}

func (r *MemoryRepo) SetField(ctx context.Context, userID, extractionID string, path []string, value any, confidence float64) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	wrapped, err := cloneFields(map[string]any{"v": value})
	if err != nil {
		return err
	}
	return r.mutate(ctx, userID, extractionID, func(ext *Extraction) error {
		updated, err := jsonpath.Set(ext.ExtractedFields, path, wrapped["v"])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		ext.ExtractedFields = updated
		if ext.ConfidenceScores == nil {
			ext.ConfidenceScores = map[string]float64{}
		}
		ext.ConfidenceScores[jsonpath.Join(path)] = confidence
		return nil
	})
}

func (r *MemoryRepo) DeleteField(ctx context.Context, userID, extractionID string, path []string) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	return r.mutate(ctx, userID, extractionID, func(ext *Extraction) error {
		ext.ExtractedFields, _ = jsonpath.Delete(ext.ExtractedFields, path)
		delete(ext.ConfidenceScores, jsonpath.Join(path))
		return nil
	})
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, userID, extractionID string, status Status) error {
	return r.mutate(ctx, userID, extractionID, func(ext *Extraction) error {
		ext.Status = status
		return nil
	})
}

func (r *MemoryRepo) SetProcessingTime(ctx context.Context, userID, extractionID string, ms int64) error {
	return r.mutate(ctx, userID, extractionID, func(ext *Extraction) error {
		ext.ProcessingTimeMS = ms
		return nil
	})
}

func (r *MemoryRepo) mutate(ctx context.Context, userID, extractionID string, fn func(*Extraction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ext, ok := r.data[extractionID]
	if !ok || ext.UserID != userID {
		return ErrNotFound
	}
	working, err := clone(ext)
	if err != nil {
		return err
	}
	if err := fn(&working); err != nil {
		return err
	}
	working.UpdatedAt = r.now()
	r.data[extractionID] = working
	return nil
}

// clone deep-copies through JSON so stored state matches what Postgres
// would hand back.
func clone(ext Extraction) (Extraction, error) {
	fields, err := cloneFields(ext.ExtractedFields)
	if err != nil {
		return Extraction{}, err
	}
	ext.ExtractedFields = fields
	scores := make(map[string]float64, len(ext.ConfidenceScores))
	for k, v := range ext.ConfidenceScores {
		scores[k] = v
	}
	ext.ConfidenceScores = scores
	ext.CustomFields = append([]CustomField(nil), ext.CustomFields...)
	return ext, nil
}

func cloneFields(fields map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(fields) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
