package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/ocr"
	"stackdocs-backend/internal/shared/server/middleware"
	"stackdocs-backend/internal/shared/server/respond"
	"stackdocs-backend/internal/shared/server/sse"
	"stackdocs-backend/internal/shared/telemetry"
)

// Handler exposes the agent workflows over SSE.
type Handler struct {
	Extractor *Extractor
	Metadata  *MetadataGenerator
	// Model is recorded on new extractions.
	Model string
}

// NewHandler constructs a Handler.
func NewHandler(extractor *Extractor, metadata *MetadataGenerator, model string) *Handler {
	return &Handler{Extractor: extractor, Metadata: metadata, Model: model}
}

// RegisterRoutes attaches agent routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/agent/extract", h.extract)
	rg.POST("/agent/correct", h.correct)
	rg.GET("/agent/health", h.health)
	rg.POST("/document/metadata", h.metadata)
}

type extractRequest struct {
	DocumentID       string          `json:"document_id" form:"document_id"`
	Mode             string          `json:"mode" form:"mode"`
	CustomFields     string          `json:"-" form:"custom_fields"`
	CustomFieldsJSON json.RawMessage `json:"custom_fields" form:"-"`
}

// customFieldsRaw returns the custom_fields value as text regardless of
// whether it arrived as a form field, a JSON string or a JSON array.
func (r extractRequest) customFieldsRaw() string {
	if len(r.CustomFieldsJSON) == 0 {
		return r.CustomFields
	}
	var s string
	if err := json.Unmarshal(r.CustomFieldsJSON, &s); err == nil {
		return s
	}
	return string(r.CustomFieldsJSON)
}

func (h *Handler) extract(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req extractRequest
	if err := c.ShouldBind(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request payload", nil)
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document_id is required", nil)
		return
	}
	mode := extractions.Mode(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = extractions.ModeAuto
	}
	if !extractions.ValidMode(mode) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "Mode must be 'auto' or 'custom'", nil)
		return
	}
	fields := ParseCustomFields(req.customFieldsRaw())
	if mode == extractions.ModeCustom && len(fields) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "custom_fields required for custom mode", nil)
		return
	}
	if mode == extractions.ModeAuto {
		fields = nil
	}

	ctx := c.Request.Context()
	if _, ok := h.requireDocument(c, userID, req.DocumentID); !ok {
		return
	}
	if !h.requireOCR(c, userID, req.DocumentID, "No cached OCR. Process document first.") {
		return
	}

	start := time.Now()
	ext := extractions.Extraction{
		ID:               uuid.NewString(),
		DocumentID:       req.DocumentID,
		UserID:           userID,
		ExtractedFields:  map[string]any{},
		ConfidenceScores: map[string]float64{},
		Mode:             mode,
		CustomFields:     fields,
		Model:            h.Model,
		Status:           extractions.StatusInProgress,
	}
	if err := h.Extractor.Extractions.Create(ctx, ext); err != nil {
		respond.Internal(c, "failed to create extraction", err)
		return
	}
	middleware.TagExtraction(c, ext.ID)

	h.stream(c, func(ctx context.Context, emit func(agent.Event)) {
		h.Extractor.Extract(ctx, ExtractInput{
			UserID:       userID,
			DocumentID:   req.DocumentID,
			ExtractionID: ext.ID,
			Mode:         mode,
			CustomFields: fields,
		}, emit)
	}, func(ctx context.Context, ev *agent.Event) {
		ms := time.Since(start).Milliseconds()
		ev.ProcessingTimeMS = &ms
		if err := h.Extractor.Extractions.SetProcessingTime(ctx, userID, ext.ID, ms); err != nil {
			telemetry.Error("extraction.processing_time_failed", map[string]any{"extraction_id": ext.ID, "error": err.Error()})
		}
		if ev.SessionID != "" {
			if err := h.Extractor.Documents.SetSessionID(ctx, userID, req.DocumentID, ev.SessionID); err != nil {
				telemetry.Error("document.session_id_failed", map[string]any{"document_id": req.DocumentID, "error": err.Error()})
			}
		}
	})
}

type correctRequest struct {
	DocumentID  string `json:"document_id" form:"document_id"`
	Instruction string `json:"instruction" form:"instruction"`
}

func (h *Handler) correct(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req correctRequest
	if err := c.ShouldBind(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request payload", nil)
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" || strings.TrimSpace(req.Instruction) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document_id and instruction are required", nil)
		return
	}

	doc, ok := h.requireDocument(c, userID, req.DocumentID)
	if !ok {
		return
	}
	if doc.SessionID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "No session found. Extract first.", nil)
		return
	}
	ext, err := h.Extractor.Extractions.LatestForDocument(c.Request.Context(), userID, req.DocumentID)
	if err != nil {
		if errors.Is(err, extractions.ErrNotFound) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "No extraction found", nil)
			return
		}
		respond.Internal(c, "failed to load extraction", err)
		return
	}
	middleware.TagExtraction(c, ext.ID)

	h.stream(c, func(ctx context.Context, emit func(agent.Event)) {
		h.Extractor.Correct(ctx, CorrectInput{
			UserID:       userID,
			DocumentID:   req.DocumentID,
			ExtractionID: ext.ID,
			SessionID:    doc.SessionID,
			Instruction:  req.Instruction,
		}, emit)
	}, nil)
}

type metadataRequest struct {
	DocumentID string `json:"document_id" form:"document_id"`
}

func (h *Handler) metadata(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req metadataRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document_id is required", nil)
		return
	}

	doc, ok := h.requireDocument(c, userID, req.DocumentID)
	if !ok {
		return
	}
	if !doc.ReadyForMetadata() {
		respond.Error(c, http.StatusBadRequest, "validation_error", fmt.Sprintf("Document not ready. Status: %s", doc.Status), nil)
		return
	}
	if !h.requireOCR(c, userID, req.DocumentID, "No OCR data found") {
		return
	}

	h.stream(c, func(ctx context.Context, emit func(agent.Event)) {
		h.Metadata.Generate(ctx, userID, req.DocumentID, emit)
	}, nil)
}

func (h *Handler) health(c *gin.Context) {
	respond.OK(c, gin.H{
		"status": "ok",
		"endpoints": []string{
			"/api/agent/extract",
			"/api/agent/correct",
			"/api/document/metadata",
		},
	})
}

func (h *Handler) requireDocument(c *gin.Context, userID, documentID string) (documents.Document, bool) {
	doc, err := h.Extractor.Documents.GetByID(c.Request.Context(), userID, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "Document not found", nil)
			return documents.Document{}, false
		}
		respond.Internal(c, "failed to load document", err)
		return documents.Document{}, false
	}
	middleware.TagDocument(c, doc.ID)
	return doc, true
}

func (h *Handler) requireOCR(c *gin.Context, userID, documentID, missing string) bool {
	if _, err := h.Extractor.OCR.Get(c.Request.Context(), userID, documentID); err != nil {
		if errors.Is(err, ocr.ErrNotFound) {
			respond.Error(c, http.StatusBadRequest, "validation_error", missing, nil)
			return false
		}
		respond.Internal(c, "failed to load OCR", err)
		return false
	}
	return true
}

// stream runs fn detached from the request and relays its events as SSE.
// onComplete may amend the completion event before it is sent. A client
// that disconnects stops receiving events but does not stop the run.
func (h *Handler) stream(c *gin.Context, fn func(ctx context.Context, emit func(agent.Event)), onComplete func(ctx context.Context, ev *agent.Event)) {
	runCtx := context.WithoutCancel(c.Request.Context())
	events := make(chan agent.Event, 16)
	go func() {
		defer close(events)
		fn(runCtx, func(ev agent.Event) { events <- ev })
	}()

	complete := func(ev *agent.Event) {
		if ev.Type == agent.EventComplete && onComplete != nil {
			onComplete(runCtx, ev)
		}
	}
	// Drain on every exit, panics included, so the run never blocks on a
	// full channel and its completion is still recorded.
	defer func() {
		for ev := range events {
			complete(&ev)
		}
	}()

	w, err := sse.Start(c)
	if err != nil {
		telemetry.Warn("sse.unsupported", map[string]any{
			"request_id": middleware.RequestIDFromContext(c),
			"error":      err.Error(),
		})
		return
	}

	connected := true
	for ev := range events {
		complete(&ev)
		if !connected {
			continue
		}
		if err := w.Send(ev); err != nil {
			connected = false
			telemetry.Warn("sse.client_gone", map[string]any{
				"request_id": middleware.RequestIDFromContext(c),
				"error":      err.Error(),
			})
		}
	}
}
