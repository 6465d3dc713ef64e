package documents

import "time"

// Status is the user-visible lifecycle state of a document.
type Status string

const (
	StatusUploading   Status = "uploading"
	StatusProcessing  Status = "processing"
	StatusOCRComplete Status = "ocr_complete"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Stage is the background pipeline position of a document.
type Stage string

const (
	StageQueuedOCR      Stage = "queued_ocr"
	StageQueuedMetadata Stage = "queued_metadata"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// Document represents an uploaded document owned by a user.
type Document struct {
	ID            string
	UserID        string
	FileName      string
	StorageKey    string
	MimeType      string
	SizeBytes     int64
	Status        Status
	PipelineStage Stage
	SessionID     string
	DisplayName   string
	Tags          []string
	Summary       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Metadata is the agent-generated description of a document.
type Metadata struct {
	DisplayName string
	Tags        []string
	Summary     string
}

// ReadyForMetadata reports whether OCR output exists for the document.
func (d Document) ReadyForMetadata() bool {
	return d.Status == StatusOCRComplete || d.Status == StatusCompleted
}

// RetryableOCR reports whether OCR may be re-queued.
func (d Document) RetryableOCR() bool {
	return d.Status == StatusFailed || d.Status == StatusUploading
}
