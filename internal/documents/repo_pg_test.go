package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	doc := Document{
		ID:         "doc-1",
		UserID:     "user-1",
		FileName:   "invoice.pdf",
		StorageKey: "user-1/doc-1_invoice.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  1024,
		Status:     StatusUploading,
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(doc.ID, doc.UserID, doc.FileName, doc.StorageKey, doc.MimeType, doc.SizeBytes, "uploading", "queued_ocr", doc.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDScopesToUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "filename", "file_path", "mime_type", "file_size", "status", "pipeline_stage",
		"session_id", "display_name", "tags", "summary", "created_at", "updated_at",
	}).AddRow("doc-1", "user-1", "invoice.pdf", "user-1/doc-1_invoice.pdf", "application/pdf", int64(10), "ocr_complete", "done",
		"sess-1", "Invoice - Acme.pdf", []byte(`["invoice","acme"]`), "Monthly invoice.", now, now)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1 AND user_id = \\$2").
		WithArgs("doc-1", "user-1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.Status != StatusOCRComplete || doc.PipelineStage != StageDone {
		t.Fatalf("unexpected state %s/%s", doc.Status, doc.PipelineStage)
	}
	if doc.SessionID != "sess-1" || len(doc.Tags) != 2 || doc.Tags[1] != "acme" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateMetadataNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE documents SET display_name").
		WithArgs("Receipt.pdf", `["receipt"]`, "A receipt.", "doc-9", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateMetadata(context.Background(), "user-1", "doc-9", Metadata{
		DisplayName: "Receipt.pdf",
		Tags:        []string{"receipt"},
		Summary:     "A receipt.",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("failed", "doc-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "user-1", "doc-1", StatusFailed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
