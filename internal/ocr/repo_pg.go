package ocr

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Upsert inserts the OCR result or replaces the existing row for the document.
func (r *PGRepo) Upsert(ctx context.Context, res Result) error {
	tables, usage, layout, err := encodeResult(res)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO ocr_results (
    document_id,
    user_id,
    raw_text,
    html_tables,
    page_count,
    model,
    processing_time_ms,
    usage_info,
    layout_data
) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8::jsonb, $9::jsonb)
ON CONFLICT (document_id) DO UPDATE SET
    raw_text = EXCLUDED.raw_text,
    html_tables = EXCLUDED.html_tables,
    page_count = EXCLUDED.page_count,
    model = EXCLUDED.model,
    processing_time_ms = EXCLUDED.processing_time_ms,
    usage_info = EXCLUDED.usage_info,
    layout_data = EXCLUDED.layout_data,
    updated_at = now()`

	_, err = r.DB.ExecContext(
		ctx,
		query,
		res.DocumentID,
		res.UserID,
		res.RawText,
		tables,
		res.PageCount,
		res.Model,
		res.ProcessingTimeMS,
		usage,
		layout,
	)
	return err
}

// Get fetches the OCR result for a document owned by userID.
func (r *PGRepo) Get(ctx context.Context, userID, documentID string) (Result, error) {
	const query = `
SELECT document_id, user_id, raw_text, html_tables, page_count, model, processing_time_ms, usage_info, layout_data, created_at, updated_at
FROM ocr_results
WHERE document_id = $1 AND user_id = $2`

	var (
		res                   Result
		tables, usage, layout []byte
	)
	err := r.DB.QueryRowContext(ctx, query, documentID, userID).Scan(
		&res.DocumentID,
		&res.UserID,
		&res.RawText,
		&tables,
		&res.PageCount,
		&res.Model,
		&res.ProcessingTimeMS,
		&usage,
		&layout,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if len(tables) > 0 {
		if err := json.Unmarshal(tables, &res.HTMLTables); err != nil {
			return Result{}, fmt.Errorf("decode html_tables: %w", err)
		}
	}
	if len(usage) > 0 {
		if err := json.Unmarshal(usage, &res.UsageInfo); err != nil {
			return Result{}, fmt.Errorf("decode usage_info: %w", err)
		}
	}
	if len(layout) > 0 {
		if err := json.Unmarshal(layout, &res.LayoutData); err != nil {
			return Result{}, fmt.Errorf("decode layout_data: %w", err)
		}
	}
	return res, nil
}

func encodeResult(res Result) (tables, usage, layout string, err error) {
	htmlTables := res.HTMLTables
	if htmlTables == nil {
		htmlTables = []string{}
	}
	raw, err := json.Marshal(htmlTables)
	if err != nil {
		return "", "", "", fmt.Errorf("encode html_tables: %w", err)
	}
	tables = string(raw)

	raw, err = json.Marshal(res.UsageInfo)
	if err != nil {
		return "", "", "", fmt.Errorf("encode usage_info: %w", err)
	}
	usage = string(raw)

	layoutData := res.LayoutData
	if layoutData == nil {
		layoutData = map[string]any{}
	}
	raw, err = json.Marshal(layoutData)
	if err != nil {
		return "", "", "", fmt.Errorf("encode layout_data: %w", err)
	}
	layout = string(raw)
	return tables, usage, layout, nil
}

var _ Repo = (*PGRepo)(nil)
