package extractions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres. Single-field writes go through the
// update_extraction_field and remove_extraction_field functions so the
// nested jsonb update happens atomically in the database.
type PGRepo struct {
	DB *sql.DB
}

// invalidParameterValue is the SQLSTATE update_extraction_field raises when
// the path does not resolve after the write.
const invalidParameterValue = "22023"

const extractionColumns = `id, document_id, user_id, extracted_fields, confidence_scores, mode, custom_fields, model, processing_time_ms, status, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, ext Extraction) error {
	fields, scores, custom, err := encodeExtraction(ext)
	if err != nil {
		return err
	}
	status := ext.Status
	if status == "" {
		status = StatusInProgress
	}
	const query = `
INSERT INTO extractions (
    id,
    document_id,
    user_id,
    extracted_fields,
    confidence_scores,
    mode,
    custom_fields,
    model,
    processing_time_ms,
    status
) VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7::jsonb, $8, $9, $10)`

	_, err = r.DB.ExecContext(
		ctx,
		query,
		ext.ID,
		ext.DocumentID,
		ext.UserID,
		fields,
		scores,
		string(ext.Mode),
		custom,
		ext.Model,
		ext.ProcessingTimeMS,
		string(status),
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, userID, extractionID string) (Extraction, error) {
	query := `SELECT ` + extractionColumns + `
FROM extractions
WHERE id = $1 AND user_id = $2`
	return r.queryOne(ctx, query, extractionID, userID)
}

func (r *PGRepo) LatestForDocument(ctx context.Context, userID, documentID string) (Extraction, error) {
	query := `SELECT ` + extractionColumns + `
FROM extractions
WHERE document_id = $1 AND user_id = $2
ORDER BY created_at DESC
LIMIT 1`
	return r.queryOne(ctx, query, documentID, userID)
}

func (r *PGRepo) ReplaceFields(ctx context.Context, userID, extractionID string, fields map[string]any, confidences map[string]float64) error {
	encodedFields, encodedScores, _, err := encodeExtraction(Extraction{ExtractedFields: fields, ConfidenceScores: confidences})
	if err != nil {
		return err
	}
	const query = `
UPDATE extractions
SET extracted_fields = $1::jsonb, confidence_scores = $2::jsonb, status = 'in_progress', updated_at = now()
WHERE id = $3 AND user_id = $4`
	return r.execOne(ctx, query, encodedFields, encodedScores, extractionID, userID)
}

func (r *PGRepo) SetField(ctx context.Context, userID, extractionID string, path []string, value any, confidence float64) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	encodedPath, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	encodedValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	const query = `SELECT update_extraction_field($1, $2, ARRAY(SELECT jsonb_array_elements_text($3::jsonb)), $4::jsonb, $5)`
	var found bool
	if err := r.DB.QueryRowContext(ctx, query, extractionID, userID, string(encodedPath), string(encodedValue), confidence).Scan(&found); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == invalidParameterValue {
			return fmt.Errorf("%w: %s", ErrInvalidPath, pgErr.Message)
		}
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) DeleteField(ctx context.Context, userID, extractionID string, path []string) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	encodedPath, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	const query = `SELECT remove_extraction_field($1, $2, ARRAY(SELECT jsonb_array_elements_text($3::jsonb)))`
	var found bool
	if err := r.DB.QueryRowContext(ctx, query, extractionID, userID, string(encodedPath)).Scan(&found); err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, userID, extractionID string, status Status) error {
	const query = `
UPDATE extractions
SET status = $1, updated_at = now()
WHERE id = $2 AND user_id = $3`
	return r.execOne(ctx, query, string(status), extractionID, userID)
}

func (r *PGRepo) SetProcessingTime(ctx context.Context, userID, extractionID string, ms int64) error {
	const query = `
UPDATE extractions
SET processing_time_ms = $1, updated_at = now()
WHERE id = $2 AND user_id = $3`
	return r.execOne(ctx, query, ms, extractionID, userID)
}

func (r *PGRepo) queryOne(ctx context.Context, query string, args ...any) (Extraction, error) {
	var (
		ext            Extraction
		fields, scores []byte
		custom         []byte
		mode, status   string
	)
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&ext.ID,
		&ext.DocumentID,
		&ext.UserID,
		&fields,
		&scores,
		&mode,
		&custom,
		&ext.Model,
		&ext.ProcessingTimeMS,
		&status,
		&ext.CreatedAt,
		&ext.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Extraction{}, ErrNotFound
		}
		return Extraction{}, err
	}
	ext.Mode = Mode(mode)
	ext.Status = Status(status)
	ext.ExtractedFields = map[string]any{}
	ext.ConfidenceScores = map[string]float64{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &ext.ExtractedFields); err != nil {
			return Extraction{}, fmt.Errorf("decode extracted_fields: %w", err)
		}
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &ext.ConfidenceScores); err != nil {
			return Extraction{}, fmt.Errorf("decode confidence_scores: %w", err)
		}
	}
	if len(custom) > 0 && string(custom) != "null" {
		if err := json.Unmarshal(custom, &ext.CustomFields); err != nil {
			return Extraction{}, fmt.Errorf("decode custom_fields: %w", err)
		}
	}
	return ext, nil
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

func encodeExtraction(ext Extraction) (fields, scores string, custom any, err error) {
	f := ext.ExtractedFields
	if f == nil {
		f = map[string]any{}
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return "", "", nil, fmt.Errorf("encode extracted_fields: %w", err)
	}
	fields = string(raw)

	s := ext.ConfidenceScores
	if s == nil {
		s = map[string]float64{}
	}
	raw, err = json.Marshal(s)
	if err != nil {
		return "", "", nil, fmt.Errorf("encode confidence_scores: %w", err)
	}
	scores = string(raw)

	if len(ext.CustomFields) > 0 {
		raw, err = json.Marshal(ext.CustomFields)
		if err != nil {
			return "", "", nil, fmt.Errorf("encode custom_fields: %w", err)
		}
		custom = string(raw)
	}
	return fields, scores, custom, nil
}

var _ Repo = (*PGRepo)(nil)
