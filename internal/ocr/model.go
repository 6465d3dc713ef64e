package ocr

import (
	"errors"
	"time"
)

// ErrNotFound indicates no OCR result exists for the document and user.
var ErrNotFound = errors.New("ocr result not found")

// UsageInfo is the provider-reported accounting for one OCR call.
type UsageInfo struct {
	PagesProcessed int   `json:"pages_processed,omitempty"`
	DocSizeBytes   int64 `json:"doc_size_bytes,omitempty"`
}

// Result is the cached OCR output for a document. One per document.
type Result struct {
	DocumentID       string
	UserID           string
	RawText          string
	HTMLTables       []string
	PageCount        int
	Model            string
	ProcessingTimeMS int64
	UsageInfo        UsageInfo
	LayoutData       map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
