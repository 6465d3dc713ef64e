package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/storage/object"
	"stackdocs-backend/internal/shared/telemetry"
	"stackdocs-backend/internal/shared/util"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 10 << 20

var allowedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
}

// UsageGate reports whether a user may start another document.
type UsageGate interface {
	CanUpload(ctx context.Context, userID string) (bool, error)
}

// OCRScheduler queues the background OCR stage for a document.
type OCRScheduler interface {
	ScheduleOCR(ctx context.Context, doc Document, requestID string) error
}

// Service contains business logic for documents.
type Service struct {
	Store     object.ObjectStore
	Repo      DocumentsRepo
	Usage     UsageGate
	Scheduler OCRScheduler
}

// UploadInput describes a file received from a client.
type UploadInput struct {
	UserID    string
	FileName  string
	MimeType  string
	SizeBytes int64
	Body      io.Reader
	RequestID string
}

// StorageKey returns the object key for a document file.
func StorageKey(userID, documentID, fileName string) string {
	return fmt.Sprintf("%s/%s_%s", userID, documentID, fileName)
}

// Upload checks quota, validates and stores the file, records the document
// and queues OCR.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Document, error) {
	if s.Usage != nil {
		ok, err := s.Usage.CanUpload(ctx, in.UserID)
		if err != nil {
			return Document{}, fmt.Errorf("usage check: %w", err)
		}
		if !ok {
			return Document{}, ErrLimitReached
		}
	}

	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		return Document{}, ErrFilenameRequired
	}
	safeName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	body := in.Body
	mimeType, body, err := resolveMimeType(in.MimeType, body)
	if err != nil {
		return Document{}, err
	}
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return Document{}, UnsupportedTypeError{MimeType: mimeType}
	}
	if in.SizeBytes > MaxFileSize {
		return Document{}, ErrFileTooLarge
	}

	docID := uuid.NewString()
	key := StorageKey(in.UserID, docID, safeName)

	written, err := s.Store.Put(ctx, key, mimeType, io.LimitReader(body, MaxFileSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("store file: %w", err)
	}
	if written > MaxFileSize {
		s.cleanup(ctx, key, docID)
		return Document{}, ErrFileTooLarge
	}

	now := time.Now().UTC()
	doc := Document{
		ID:            docID,
		UserID:        in.UserID,
		FileName:      fileName,
		StorageKey:    key,
		MimeType:      mimeType,
		SizeBytes:     written,
		Status:        StatusUploading,
		PipelineStage: StageQueuedOCR,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		s.cleanup(ctx, key, docID)
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	metrics.IncDocumentsUploaded()

	s.schedule(ctx, doc, in.RequestID)
	return doc, nil
}

// RetryOCR re-queues OCR for a document that failed or never left upload.
func (s *Service) RetryOCR(ctx context.Context, userID, documentID, requestID string) (Document, error) {
	doc, err := s.Repo.GetByID(ctx, userID, documentID)
	if err != nil {
		return Document{}, err
	}
	if !doc.RetryableOCR() {
		return Document{}, NotRetryableError{Status: doc.Status}
	}
	if err := s.Repo.UpdateStatus(ctx, userID, documentID, StatusUploading); err != nil {
		return Document{}, err
	}
	if err := s.Repo.UpdateStage(ctx, userID, documentID, StageQueuedOCR); err != nil {
		return Document{}, err
	}
	doc.Status = StatusUploading
	doc.PipelineStage = StageQueuedOCR

	telemetry.Info("document.ocr_retry", map[string]any{
		"document_id": documentID,
		"user_id":     userID,
		"request_id":  requestID,
	})
	s.schedule(ctx, doc, requestID)
	return doc, nil
}

// Get returns a document owned by userID.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return Document{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, userID, documentID)
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) schedule(ctx context.Context, doc Document, requestID string) {
	if s.Scheduler == nil {
		return
	}
	if err := s.Scheduler.ScheduleOCR(ctx, doc, requestID); err != nil {
		// The document stays in uploading, which retry-ocr accepts.
		telemetry.Error("document.ocr_enqueue_failed", map[string]any{
			"document_id": doc.ID,
			"user_id":     doc.UserID,
			"request_id":  requestID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) cleanup(ctx context.Context, key, docID string) {
	if err := s.Store.Delete(context.WithoutCancel(ctx), key); err != nil {
		telemetry.Error("document.storage_cleanup_failed", map[string]any{
			"document_id": docID,
			"storage_key": key,
			"error":       err.Error(),
		})
	}
}

// resolveMimeType normalizes the declared type, sniffing the content when
// the client sent none.
func resolveMimeType(declared string, body io.Reader) (string, io.Reader, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			declared = parsed
		}
	}
	declared = strings.ToLower(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared, body, nil
	}

	var sniff [512]byte
	n, err := io.ReadFull(body, sniff[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("read sniff: %w", err)
	}
	detected, _, _ := mime.ParseMediaType(http.DetectContentType(sniff[:n]))
	return detected, io.MultiReader(bytes.NewReader(sniff[:n]), body), nil
}
