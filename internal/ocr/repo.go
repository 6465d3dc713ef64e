package ocr

import "context"

// Repo persists OCR results.
type Repo interface {
	Upsert(ctx context.Context, res Result) error
	Get(ctx context.Context, userID, documentID string) (Result, error)
}
