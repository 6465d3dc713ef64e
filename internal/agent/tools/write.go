package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/jsonpath"
)

const (
	defaultConfidence = 0.8
	maxTags           = 10
	maxSummaryLen     = 200
)

func (ts *Toolset) saveExtraction(ctx context.Context, args map[string]any) Result {
	fields, _ := parseStructured(args["fields"]).(map[string]any)
	if len(fields) == 0 {
		return errorResult("No fields provided")
	}

	confidences := map[string]float64{}
	if raw, ok := parseStructured(args["confidences"]).(map[string]any); ok {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			conf, ok := raw[k].(float64)
			if !ok || conf < 0 || conf > 1 {
				return errorResult(fmt.Sprintf("Confidence for '%s' must be 0.0-1.0, got %s", k, formatAny(raw[k])))
			}
			confidences[k] = conf
		}
	}

	if err := ts.Extractions.ReplaceFields(ctx, ts.Scope.UserID, ts.Scope.ExtractionID, fields, confidences); err != nil {
		return extractionError(err)
	}
	return textResult(fmt.Sprintf("Saved %d fields to database", len(fields)))
}

func (ts *Toolset) setField(ctx context.Context, args map[string]any) Result {
	path := stringArg(args, "path")
	segments := jsonpath.Split(path)
	if len(segments) == 0 {
		return errorResult("Path is required")
	}

	confidence := defaultConfidence
	if raw, ok := args["confidence"]; ok && raw != nil {
		c, ok := toFloat(raw)
		if !ok || c < 0 || c > 1 {
			return errorResult(fmt.Sprintf("Confidence must be 0.0-1.0, got %s", formatAny(raw)))
		}
		confidence = c
	}

	value := args["value"]
	if err := ts.Extractions.SetField(ctx, ts.Scope.UserID, ts.Scope.ExtractionID, segments, parseStructured(value), confidence); err != nil {
		if errors.Is(err, extractions.ErrInvalidPath) {
			return errorResult(fmt.Sprintf("Cannot set '%s': %v", path, err))
		}
		return extractionError(err)
	}
	return textResult(fmt.Sprintf("Updated '%s' = %s (confidence: %s)", path, formatAny(value), formatFloat(confidence)))
}

func (ts *Toolset) deleteField(ctx context.Context, args map[string]any) Result {
	path := stringArg(args, "path")
	segments := jsonpath.Split(path)
	if len(segments) == 0 {
		return errorResult("Path is required")
	}
	if err := ts.Extractions.DeleteField(ctx, ts.Scope.UserID, ts.Scope.ExtractionID, segments); err != nil {
		return extractionError(err)
	}
	return textResult(fmt.Sprintf("Removed field at '%s'", path))
}

func (ts *Toolset) complete(ctx context.Context, _ map[string]any) Result {
	ext, err := ts.Extractions.GetByID(ctx, ts.Scope.UserID, ts.Scope.ExtractionID)
	if err != nil && !errors.Is(err, extractions.ErrNotFound) {
		return dbError(err)
	}
	if err != nil || len(ext.ExtractedFields) == 0 {
		return errorResult("Cannot complete: no fields extracted")
	}

	if err := ts.Extractions.UpdateStatus(ctx, ts.Scope.UserID, ts.Scope.ExtractionID, extractions.StatusCompleted); err != nil {
		return extractionError(err)
	}
	if err := ts.Documents.UpdateStatus(ctx, ts.Scope.UserID, ts.Scope.DocumentID, documents.StatusCompleted); err != nil && !errors.Is(err, documents.ErrNotFound) {
		return dbError(err)
	}
	return textResult(fmt.Sprintf("Extraction complete. %d fields saved.", len(ext.ExtractedFields)))
}

func (ts *Toolset) saveMetadata(ctx context.Context, args map[string]any) Result {
	displayName := strings.TrimSpace(stringArg(args, "display_name"))
	if displayName == "" {
		return errorResult("display_name is required")
	}

	rawTags := parseStructured(args["tags"])
	if rawTags == nil {
		rawTags = []any{}
	}
	list, ok := rawTags.([]any)
	if !ok {
		return errorResult("tags must be a list")
	}
	tags := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		tags = append(tags, strings.ToLower(strings.TrimSpace(s)))
		if len(tags) == maxTags {
			break
		}
	}

	summary := strings.TrimSpace(stringArg(args, "summary"))
	if runes := []rune(summary); len(runes) > maxSummaryLen {
		summary = string(runes[:maxSummaryLen-3]) + "..."
	}

	err := ts.Documents.UpdateMetadata(ctx, ts.Scope.UserID, ts.Scope.DocumentID, documents.Metadata{
		DisplayName: displayName,
		Tags:        tags,
		Summary:     summary,
	})
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return errorResult("Error: Document not found or update failed")
		}
		return dbError(err)
	}
	return textResult(fmt.Sprintf("Saved metadata: '%s' with %d tags", displayName, len(tags)))
}

func extractionError(err error) Result {
	if errors.Is(err, extractions.ErrNotFound) {
		return errorResult("No extraction found")
	}
	return dbError(err)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatAny renders strings as-is and everything else as JSON.
func formatAny(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}
