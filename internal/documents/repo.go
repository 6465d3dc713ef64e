package documents

import "context"

// DocumentsRepo defines persistence operations for documents. Every lookup
// and mutation is scoped to the owning user.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userID, documentID string) (Document, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error)
	UpdateStatus(ctx context.Context, userID, documentID string, status Status) error
	UpdateStage(ctx context.Context, userID, documentID string, stage Stage) error
	SetSessionID(ctx context.Context, userID, documentID, sessionID string) error
	UpdateMetadata(ctx context.Context, userID, documentID string, meta Metadata) error
}
