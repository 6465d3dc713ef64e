package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the document does not exist for the caller.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFilenameRequired indicates an upload without a file name.
	ErrFilenameRequired = fmt.Errorf("%w: Filename is required", ErrInvalidInput)
	// ErrFileTooLarge indicates an upload above MaxFileSize.
	ErrFileTooLarge = fmt.Errorf("%w: File too large. Maximum size: 10MB", ErrInvalidInput)
	// ErrUnsupportedType indicates a mime type outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrLimitReached indicates the monthly processing quota is exhausted.
	ErrLimitReached = errors.New("upload limit reached")
	// ErrNotRetryable indicates OCR cannot be re-queued in the current status.
	ErrNotRetryable = errors.New("ocr not retryable")
)

// UnsupportedTypeError carries the rejected mime type.
type UnsupportedTypeError struct {
	MimeType string
}

func (e UnsupportedTypeError) Error() string {
	return fmt.Sprintf("Unsupported file type: %s. Allowed: PDF, JPEG, PNG, WebP", e.MimeType)
}

func (e UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// NotRetryableError carries the status that blocked an OCR retry.
type NotRetryableError struct {
	Status Status
}

func (e NotRetryableError) Error() string {
	return fmt.Sprintf("Cannot retry OCR on document with status: %s. Only 'failed' documents can be retried.", e.Status)
}

func (e NotRetryableError) Is(target error) bool { return target == ErrNotRetryable }

// userMessage strips the sentinel prefix from wrapped validation errors.
func userMessage(err error) string {
	msg := err.Error()
	prefix := ErrInvalidInput.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
