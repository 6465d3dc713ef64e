package documents

import "time"

// UploadResponse is returned by upload and retry-ocr.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"filename"`
	Status     Status `json:"status"`
}

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID    string    `json:"document_id"`
	FileName      string    `json:"filename"`
	MimeType      string    `json:"mime_type"`
	SizeBytes     int64     `json:"file_size"`
	Status        Status    `json:"status"`
	PipelineStage Stage     `json:"pipeline_stage"`
	SessionID     string    `json:"session_id,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Tags          []string  `json:"tags"`
	Summary       string    `json:"summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toUploadResponse(doc Document) UploadResponse {
	return UploadResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     doc.Status,
	}
}

func toResponse(doc Document) DocumentResponse {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return DocumentResponse{
		DocumentID:    doc.ID,
		FileName:      doc.FileName,
		MimeType:      doc.MimeType,
		SizeBytes:     doc.SizeBytes,
		Status:        doc.Status,
		PipelineStage: doc.PipelineStage,
		SessionID:     doc.SessionID,
		DisplayName:   doc.DisplayName,
		Tags:          tags,
		Summary:       doc.Summary,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
