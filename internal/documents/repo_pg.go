package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, filename, file_path, mime_type, file_size, status, pipeline_stage, session_id, display_name, tags, summary, created_at, updated_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    user_id,
    filename,
    file_path,
    mime_type,
    file_size,
    status,
    pipeline_stage,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	stage := doc.PipelineStage
	if stage == "" {
		stage = StageQueuedOCR
	}
	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.StorageKey,
		doc.MimeType,
		doc.SizeBytes,
		string(doc.Status),
		string(stage),
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document by ID for a user.
func (r *PGRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE id = $1 AND user_id = $2
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByUser lists documents ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// UpdateStatus sets the lifecycle status.
func (r *PGRepo) UpdateStatus(ctx context.Context, userID, documentID string, status Status) error {
	const query = `
UPDATE documents
SET status = $1, updated_at = now()
WHERE id = $2 AND user_id = $3`
	return r.execOne(ctx, query, string(status), documentID, userID)
}

// UpdateStage sets the pipeline stage.
func (r *PGRepo) UpdateStage(ctx context.Context, userID, documentID string, stage Stage) error {
	const query = `
UPDATE documents
SET pipeline_stage = $1, updated_at = now()
WHERE id = $2 AND user_id = $3`
	return r.execOne(ctx, query, string(stage), documentID, userID)
}

// SetSessionID records the agent session used to extract the document.
func (r *PGRepo) SetSessionID(ctx context.Context, userID, documentID, sessionID string) error {
	const query = `
UPDATE documents
SET session_id = $1, updated_at = now()
WHERE id = $2 AND user_id = $3`
	return r.execOne(ctx, query, sessionID, documentID, userID)
}

// UpdateMetadata stores the generated display name, tags and summary.
func (r *PGRepo) UpdateMetadata(ctx context.Context, userID, documentID string, meta Metadata) error {
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	const query = `
UPDATE documents
SET display_name = $1, tags = $2::jsonb, summary = $3, updated_at = now()
WHERE id = $4 AND user_id = $5`
	return r.execOne(ctx, query, meta.DisplayName, string(encoded), meta.Summary, documentID, userID)
}

func (r *PGRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc         Document
		status      string
		stage       string
		sessionID   sql.NullString
		displayName sql.NullString
		tags        []byte
		summary     sql.NullString
	)
	if err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.StorageKey,
		&doc.MimeType,
		&doc.SizeBytes,
		&status,
		&stage,
		&sessionID,
		&displayName,
		&tags,
		&summary,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	doc.PipelineStage = Stage(stage)
	if sessionID.Valid {
		doc.SessionID = sessionID.String
	}
	if displayName.Valid {
		doc.DisplayName = displayName.String
	}
	if summary.Valid {
		doc.Summary = summary.String
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &doc.Tags); err != nil {
			return Document{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return doc, nil
}

var _ DocumentsRepo = (*PGRepo)(nil)
