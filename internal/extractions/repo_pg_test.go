package extractions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoSetFieldCallsFunction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT update_extraction_field\\(\\$1, \\$2, ARRAY\\(SELECT jsonb_array_elements_text\\(\\$3::jsonb\\)\\), \\$4::jsonb, \\$5\\)").
		WithArgs("ext-1", "user-1", `["items","2","price"]`, `19.99`, 0.8).
		WillReturnRows(sqlmock.NewRows([]string{"update_extraction_field"}).AddRow(true))

	if err := repo.SetField(context.Background(), "user-1", "ext-1", []string{"items", "2", "price"}, 19.99, 0.8); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetFieldMapsUnwritablePath(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT update_extraction_field").
		WithArgs("ext-1", "user-1", `["items","5","price"]`, `9`, 0.7).
		WillReturnError(&pgconn.PgError{Code: "22023", Message: "field path items.5.price cannot be written"})

	err := repo.SetField(context.Background(), "user-1", "ext-1", []string{"items", "5", "price"}, 9, 0.7)
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteFieldNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT remove_extraction_field").
		WithArgs("ext-1", "user-1", `["total"]`).
		WillReturnRows(sqlmock.NewRows([]string{"remove_extraction_field"}).AddRow(false))

	err := repo.DeleteField(context.Background(), "user-1", "ext-1", []string{"total"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoReplaceFields(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE extractions SET extracted_fields = \\$1::jsonb, confidence_scores = \\$2::jsonb, status = 'in_progress'").
		WithArgs(`{"name":"Acme"}`, `{"name":0.95}`, "ext-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ReplaceFields(context.Background(), "user-1", "ext-1",
		map[string]any{"name": "Acme"}, map[string]float64{"name": 0.95})
	if err != nil {
		t.Fatalf("ReplaceFields: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoLatestForDocument(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "user_id", "extracted_fields", "confidence_scores", "mode", "custom_fields",
		"model", "processing_time_ms", "status", "created_at", "updated_at",
	}).AddRow("ext-2", "doc-1", "user-1", []byte(`{"total":12}`), []byte(`{"total":0.9}`), "custom",
		[]byte(`[{"name":"total","description":"grand total"}]`), "gpt-4o", int64(1500), "completed", now, now)

	mock.ExpectQuery("SELECT (.+) FROM extractions WHERE document_id = \\$1 AND user_id = \\$2 ORDER BY created_at DESC LIMIT 1").
		WithArgs("doc-1", "user-1").
		WillReturnRows(rows)

	ext, err := repo.LatestForDocument(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("LatestForDocument: %v", err)
	}
	if ext.ID != "ext-2" || ext.Mode != ModeCustom || ext.Status != StatusCompleted {
		t.Fatalf("unexpected extraction: %+v", ext)
	}
	if len(ext.CustomFields) != 1 || ext.CustomFields[0].Description != "grand total" {
		t.Fatalf("unexpected custom fields: %+v", ext.CustomFields)
	}
	if ext.ConfidenceScores["total"] != 0.9 {
		t.Fatalf("unexpected confidence: %v", ext.ConfidenceScores)
	}
}
