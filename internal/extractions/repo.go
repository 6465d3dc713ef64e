package extractions

import "context"

// Repo persists extractions. Every method is scoped by user.
type Repo interface {
	Create(ctx context.Context, ext Extraction) error
	GetByID(ctx context.Context, userID, extractionID string) (Extraction, error)
	LatestForDocument(ctx context.Context, userID, documentID string) (Extraction, error)
	// ReplaceFields overwrites both maps and resets status to in_progress.
	ReplaceFields(ctx context.Context, userID, extractionID string, fields map[string]any, confidences map[string]float64) error
	// SetField writes value at path and records confidence under the dotted path.
	SetField(ctx context.Context, userID, extractionID string, path []string, value any, confidence float64) error
	DeleteField(ctx context.Context, userID, extractionID string, path []string) error
	UpdateStatus(ctx context.Context, userID, extractionID string, status Status) error
	SetProcessingTime(ctx context.Context, userID, extractionID string, ms int64) error
}
