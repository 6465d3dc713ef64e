// Package tools implements the operations an agent may call. Every tool is
// bound to a fixed Scope so the model never supplies identity.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/llm"
	"stackdocs-backend/internal/ocr"
)

// Name identifies a tool.
type Name string

const (
	ReadOCR        Name = "read_ocr"
	ReadExtraction Name = "read_extraction"
	SaveExtraction Name = "save_extraction"
	SetField       Name = "set_field"
	DeleteField    Name = "delete_field"
	Complete       Name = "complete"
	SaveMetadata   Name = "save_metadata"
)

// ExtractionTools is the allow-list for extraction and correction runs.
var ExtractionTools = []Name{ReadOCR, ReadExtraction, SaveExtraction, SetField, DeleteField, Complete}

// MetadataTools is the allow-list for metadata runs.
var MetadataTools = []Name{ReadOCR, SaveMetadata}

// Scope binds a toolset to one document, extraction and user.
type Scope struct {
	DocumentID   string
	ExtractionID string
	UserID       string
}

// ContentItem is one block of tool output.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is what a tool hands back to the agent.
type Result struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"is_error,omitempty"`
}

// Text joins the text blocks of the result.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

func textResult(text string) Result {
	return Result{Content: []ContentItem{{Type: "text", Text: text}}}
}

func errorResult(text string) Result {
	return Result{Content: []ContentItem{{Type: "text", Text: text}}, IsError: true}
}

// OCRReader loads OCR output.
type OCRReader interface {
	Get(ctx context.Context, userID, documentID string) (ocr.Result, error)
}

// DocumentWriter updates document rows touched by tools.
type DocumentWriter interface {
	UpdateStatus(ctx context.Context, userID, documentID string, status documents.Status) error
	UpdateMetadata(ctx context.Context, userID, documentID string, meta documents.Metadata) error
}

// Toolset dispatches tool calls for a single scope.
type Toolset struct {
	Scope       Scope
	OCR         OCRReader
	Extractions extractions.Repo
	Documents   DocumentWriter
	// Allowed limits callable tools; empty allows all.
	Allowed []Name
}

type handler func(ts *Toolset, ctx context.Context, args map[string]any) Result

var handlers = map[Name]handler{
	ReadOCR:        (*Toolset).readOCR,
	ReadExtraction: (*Toolset).readExtraction,
	SaveExtraction: (*Toolset).saveExtraction,
	SetField:       (*Toolset).setField,
	DeleteField:    (*Toolset).deleteField,
	Complete:       (*Toolset).complete,
	SaveMetadata:   (*Toolset).saveMetadata,
}

// Call runs the named tool with raw JSON arguments.
func (ts *Toolset) Call(ctx context.Context, name string, args json.RawMessage) Result {
	h, ok := handlers[Name(name)]
	if !ok || !ts.allowed(Name(name)) {
		return errorResult("Unknown tool: " + name)
	}
	decoded, err := decodeArgs(args)
	if err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	return h(ts, ctx, decoded)
}

// Execute adapts Call to the agent runner.
func (ts *Toolset) Execute(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	res := ts.Call(ctx, name, args)
	return res.Text(), res.IsError
}

func (ts *Toolset) allowed(name Name) bool {
	if len(ts.Allowed) == 0 {
		return true
	}
	for _, n := range ts.Allowed {
		if n == name {
			return true
		}
	}
	return false
}

// decodeArgs accepts an object, a JSON string holding an object, or nothing.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return out, nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return out, nil
		}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return m, nil
}

// parseStructured parses string-encoded objects and arrays, keeping the raw
// value when it is not valid JSON.
func parseStructured(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return v
	}
	return parsed
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Definitions returns provider-neutral specs for the named tools.
func Definitions(names ...Name) []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(names))
	for _, n := range names {
		if spec, ok := definitions[n]; ok {
			out = append(out, spec)
		}
	}
	return out
}

var definitions = map[Name]llm.ToolSpec{
	ReadOCR: {
		Name:        string(ReadOCR),
		Description: "Read the OCR text from the document",
		Parameters:  &llm.Schema{Type: "object"},
	},
	ReadExtraction: {
		Name:        string(ReadExtraction),
		Description: "View the current extraction state",
		Parameters:  &llm.Schema{Type: "object"},
	},
	SaveExtraction: {
		Name:        string(SaveExtraction),
		Description: "Save extracted fields and confidence scores to database",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"fields":      {Type: "object", Description: "Extracted fields as a JSON object"},
				"confidences": {Type: "object", Description: "Confidence per field key, 0.0-1.0"},
			},
			Required: []string{"fields", "confidences"},
		},
	},
	SetField: {
		Name:        string(SetField),
		Description: "Update a specific field using JSON path (e.g., 'vendor.name', 'items[0].price')",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"path":       {Type: "string", Description: "JSON path of the field"},
				"value":      {Description: "New value; any JSON value"},
				"confidence": {Type: "number", Description: "Confidence 0.0-1.0, default 0.8"},
			},
			Required: []string{"path", "value"},
		},
	},
	DeleteField: {
		Name:        string(DeleteField),
		Description: "Remove a field at JSON path",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"path": {Type: "string", Description: "JSON path of the field"},
			},
			Required: []string{"path"},
		},
	},
	Complete: {
		Name:        string(Complete),
		Description: "Mark extraction as complete",
		Parameters:  &llm.Schema{Type: "object"},
	},
	SaveMetadata: {
		Name:        string(SaveMetadata),
		Description: "Save document metadata (display_name, tags, summary) to database",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"display_name": {Type: "string"},
				"tags":         {Type: "array", Items: &llm.Schema{Type: "string"}},
				"summary":      {Type: "string"},
			},
			Required: []string{"display_name", "tags", "summary"},
		},
	},
}
