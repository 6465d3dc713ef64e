package extractions

import (
	"errors"
	"time"
)

// Status is the extraction lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Mode selects whether the agent picks fields itself or follows a list.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeCustom Mode = "custom"
)

var (
	// ErrNotFound indicates no extraction exists for the caller.
	ErrNotFound = errors.New("extraction not found")
	// ErrEmptyPath indicates a field path with no segments.
	ErrEmptyPath = errors.New("empty field path")
	// ErrInvalidPath indicates a path that cannot be written, such as an
	// intermediate array index past the end.
	ErrInvalidPath = errors.New("field path cannot be written")
)

// CustomField is a user-requested field for custom mode.
type CustomField struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Extraction holds the structured fields the agent pulled from a document.
type Extraction struct {
	ID               string
	DocumentID       string
	UserID           string
	ExtractedFields  map[string]any
	ConfidenceScores map[string]float64
	Mode             Mode
	CustomFields     []CustomField
	Model            string
	ProcessingTimeMS int64
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidMode reports whether m is a known mode.
func ValidMode(m Mode) bool {
	return m == ModeAuto || m == ModeCustom
}
