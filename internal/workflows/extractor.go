package workflows

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/agent/tools"
	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/shared/telemetry"
)

const (
	extractTurns  = 5
	correctTurns  = 3
	metadataTurns = 10

	workflowExtract  = "extract"
	workflowCorrect  = "correct"
	workflowMetadata = "metadata"
)

// Deps are the repositories and clients shared by the workflows.
type Deps struct {
	Runner      *agent.Runner
	Sessions    agent.SessionStore
	Documents   documents.DocumentsRepo
	Extractions extractions.Repo
	OCR         tools.OCRReader
	SessionTTL  time.Duration
}

func (d Deps) toolset(scope tools.Scope, allowed []tools.Name) *tools.Toolset {
	return &tools.Toolset{
		Scope:       scope,
		OCR:         d.OCR,
		Extractions: d.Extractions,
		Documents:   d.Documents,
		Allowed:     allowed,
	}
}

func (d Deps) ttl() time.Duration {
	if d.SessionTTL <= 0 {
		return agent.DefaultSessionTTL
	}
	return d.SessionTTL
}

// Extractor runs extraction and correction conversations.
type Extractor struct {
	Deps
	now func() time.Time
}

// NewExtractor constructs an Extractor.
func NewExtractor(deps Deps) *Extractor {
	return &Extractor{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// ExtractInput identifies a pre-created extraction to fill.
type ExtractInput struct {
	UserID       string
	DocumentID   string
	ExtractionID string
	Mode         extractions.Mode
	CustomFields []extractions.CustomField
}

// Extract runs a fresh extraction conversation. It emits exactly one
// terminal event. On failure the extraction is marked failed first.
func (e *Extractor) Extract(ctx context.Context, in ExtractInput, emit func(agent.Event)) {
	fields := map[string]any{
		"user_id":       in.UserID,
		"document_id":   in.DocumentID,
		"extraction_id": in.ExtractionID,
	}
	sessionID := uuid.NewString()
	toolset := e.toolset(tools.Scope{
		DocumentID:   in.DocumentID,
		ExtractionID: in.ExtractionID,
		UserID:       in.UserID,
	}, tools.ExtractionTools)

	history, err := e.Runner.Execute(ctx, agent.Run{
		Workflow: workflowExtract,
		System:   extractionSystemPrompt,
		Prompt:   extractionTask(in.Mode, in.CustomFields),
		Tools:    tools.Definitions(tools.ExtractionTools...),
		Executor: toolset,
		MaxTurns: extractTurns,
		Fields:   fields,
	}, emit)
	if err != nil {
		telemetry.Error("extraction.failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		if uerr := e.Extractions.UpdateStatus(context.WithoutCancel(ctx), in.UserID, in.ExtractionID, extractions.StatusFailed); uerr != nil {
			telemetry.Error("extraction.mark_failed_failed", telemetry.Merge(fields, map[string]any{"error": uerr.Error()}))
		}
		emit(agent.ErrorEvent(err.Error()))
		return
	}

	now := e.now()
	sess := agent.Session{
		ID:        sessionID,
		UserID:    in.UserID,
		Workflow:  workflowExtract,
		Messages:  history,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(e.ttl()),
	}
	if err := e.Sessions.Save(ctx, sess); err != nil {
		telemetry.Error("agent.session_save_failed", telemetry.Merge(fields, map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		}))
		sessionID = ""
	}

	emit(agent.Event{Type: agent.EventComplete, ExtractionID: in.ExtractionID, SessionID: sessionID})
}

// CorrectInput identifies the session and extraction to correct.
type CorrectInput struct {
	UserID       string
	DocumentID   string
	ExtractionID string
	SessionID    string
	Instruction  string
}

const sessionExpiredMessage = "Session not found or expired. Extract again."

// Correct resumes a stored conversation with a user instruction. Failures
// emit an error event and leave the extraction as it was.
func (e *Extractor) Correct(ctx context.Context, in CorrectInput, emit func(agent.Event)) {
	fields := map[string]any{
		"user_id":       in.UserID,
		"document_id":   in.DocumentID,
		"extraction_id": in.ExtractionID,
		"session_id":    in.SessionID,
	}

	sess, err := e.Sessions.Get(ctx, in.UserID, in.SessionID)
	if err != nil {
		if errors.Is(err, agent.ErrSessionNotFound) {
			emit(agent.ErrorEvent(sessionExpiredMessage))
			return
		}
		emit(agent.ErrorEvent(err.Error()))
		return
	}

	prompt, err := correctionPrompt(in.Instruction)
	if err != nil {
		emit(agent.ErrorEvent(err.Error()))
		return
	}

	toolset := e.toolset(tools.Scope{
		DocumentID:   in.DocumentID,
		ExtractionID: in.ExtractionID,
		UserID:       in.UserID,
	}, tools.ExtractionTools)

	history, err := e.Runner.Execute(ctx, agent.Run{
		Workflow: workflowCorrect,
		System:   extractionSystemPrompt,
		History:  sess.Messages,
		Prompt:   prompt,
		Tools:    tools.Definitions(tools.ExtractionTools...),
		Executor: toolset,
		MaxTurns: correctTurns,
		Fields:   fields,
	}, emit)
	if err != nil {
		telemetry.Error("correction.failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		emit(agent.ErrorEvent(err.Error()))
		return
	}

	now := e.now()
	sess.Messages = history
	sess.UpdatedAt = now
	sess.ExpiresAt = now.Add(e.ttl())
	if err := e.Sessions.Save(ctx, sess); err != nil {
		telemetry.Error("agent.session_save_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}

	emit(agent.Event{Type: agent.EventComplete, ExtractionID: in.ExtractionID, SessionID: in.SessionID})
}
