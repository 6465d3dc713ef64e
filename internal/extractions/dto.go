package extractions

import "time"

// ExtractionResponse is the outward-facing representation of an extraction.
type ExtractionResponse struct {
	ExtractionID     string             `json:"extraction_id"`
	DocumentID       string             `json:"document_id"`
	ExtractedFields  map[string]any     `json:"extracted_fields"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Mode             Mode               `json:"mode"`
	CustomFields     []CustomField      `json:"custom_fields,omitempty"`
	Model            string             `json:"model"`
	ProcessingTimeMS int64              `json:"processing_time_ms"`
	Status           Status             `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func toResponse(ext Extraction) ExtractionResponse {
	fields := ext.ExtractedFields
	if fields == nil {
		fields = map[string]any{}
	}
	scores := ext.ConfidenceScores
	if scores == nil {
		scores = map[string]float64{}
	}
	return ExtractionResponse{
		ExtractionID:     ext.ID,
		DocumentID:       ext.DocumentID,
		ExtractedFields:  fields,
		ConfidenceScores: scores,
		Mode:             ext.Mode,
		CustomFields:     ext.CustomFields,
		Model:            ext.Model,
		ProcessingTimeMS: ext.ProcessingTimeMS,
		Status:           ext.Status,
		CreatedAt:        ext.CreatedAt,
		UpdatedAt:        ext.UpdatedAt,
	}
}
