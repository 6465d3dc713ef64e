package tools

import (
	"context"
	"encoding/json"
	"errors"

	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/ocr"
)

func (ts *Toolset) readOCR(ctx context.Context, _ map[string]any) Result {
	res, err := ts.OCR.Get(ctx, ts.Scope.UserID, ts.Scope.DocumentID)
	if err != nil {
		if errors.Is(err, ocr.ErrNotFound) {
			return errorResult("No OCR data found for this document")
		}
		return dbError(err)
	}
	return textResult(res.RawText)
}

func (ts *Toolset) readExtraction(ctx context.Context, _ map[string]any) Result {
	ext, err := ts.Extractions.GetByID(ctx, ts.Scope.UserID, ts.Scope.ExtractionID)
	if err != nil {
		if errors.Is(err, extractions.ErrNotFound) {
			return errorResult("No extraction found")
		}
		return dbError(err)
	}
	state := struct {
		ExtractedFields  map[string]any     `json:"extracted_fields"`
		ConfidenceScores map[string]float64 `json:"confidence_scores"`
		Status           extractions.Status `json:"status"`
	}{ext.ExtractedFields, ext.ConfidenceScores, ext.Status}
	if state.ExtractedFields == nil {
		state.ExtractedFields = map[string]any{}
	}
	if state.ConfidenceScores == nil {
		state.ConfidenceScores = map[string]float64{}
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return dbError(err)
	}
	return textResult(string(encoded))
}

func dbError(err error) Result {
	return errorResult("Database error: " + err.Error())
}
