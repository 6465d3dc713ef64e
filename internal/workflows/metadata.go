package workflows

import (
	"context"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/agent/tools"
	"stackdocs-backend/internal/shared/telemetry"
)

// MetadataGenerator names, tags and summarizes documents.
type MetadataGenerator struct {
	Deps
}

// NewMetadataGenerator constructs a MetadataGenerator.
func NewMetadataGenerator(deps Deps) *MetadataGenerator {
	return &MetadataGenerator{Deps: deps}
}

// Generate runs a one-shot metadata conversation. No session is kept and
// failures mark nothing.
func (m *MetadataGenerator) Generate(ctx context.Context, userID, documentID string, emit func(agent.Event)) {
	fields := map[string]any{
		"user_id":     userID,
		"document_id": documentID,
	}
	toolset := m.toolset(tools.Scope{DocumentID: documentID, UserID: userID}, tools.MetadataTools)

	_, err := m.Runner.Execute(ctx, agent.Run{
		Workflow: workflowMetadata,
		System:   metadataSystemPrompt,
		Prompt:   metadataTaskPrompt,
		Tools:    tools.Definitions(tools.MetadataTools...),
		Executor: toolset,
		MaxTurns: metadataTurns,
		Fields:   fields,
	}, emit)
	if err != nil {
		telemetry.Error("metadata.failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		emit(agent.ErrorEvent(err.Error()))
		return
	}
	emit(agent.Event{Type: agent.EventComplete})
}
