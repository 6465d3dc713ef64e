package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stackdocs-backend/internal/llm"
	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
)

// ToolExecutor runs a named tool and returns the text handed back to the
// model. Failures are reported in-band.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (text string, isError bool)
}

// Run describes one conversation to drive.
type Run struct {
	Workflow string
	System   string
	History  []llm.Message
	Prompt   string
	Tools    []llm.ToolSpec
	Executor ToolExecutor
	MaxTurns int
	// Fields are attached to every log line of the run.
	Fields map[string]any
}

// Runner drives the model/tool loop.
type Runner struct {
	LLM llm.Client
}

// Execute appends the prompt to the history and loops until the model
// answers without tool calls or MaxTurns model calls have been made. It
// returns the full history so the caller can persist the session.
func (r *Runner) Execute(ctx context.Context, run Run, emit func(Event)) ([]llm.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "agent.run",
		attribute.String("agent.workflow", run.Workflow),
		attribute.Int("agent.max_turns", run.MaxTurns),
	)
	defer span.End()

	start := time.Now()
	history := append([]llm.Message(nil), run.History...)
	history = append(history, llm.Message{Role: llm.RoleUser, Content: run.Prompt})

	maxTurns := run.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}

	outcome := "completed"
	defer func() {
		metrics.IncAgentRun(run.Workflow, outcome)
		metrics.ObserveAgentDurationMs(float64(time.Since(start).Milliseconds()))
	}()

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := r.LLM.Chat(ctx, llm.Request{
			System:   run.System,
			Messages: history,
			Tools:    run.Tools,
		})
		if err != nil {
			outcome = "failed"
			span.RecordError(err)
			telemetry.Error("agent.llm_failed", telemetry.Merge(run.Fields, map[string]any{
				"workflow": run.Workflow,
				"turn":     turn,
				"error":    err.Error(),
			}))
			return history, err
		}

		msg := resp.Message
		msg.Role = llm.RoleAssistant
		history = append(history, msg)

		if text := strings.TrimSpace(msg.Content); text != "" {
			emit(TextEvent(msg.Content))
		}
		if len(msg.ToolCalls) == 0 {
			return history, nil
		}

		for _, call := range msg.ToolCalls {
			emit(ToolEvent(call.Name, parseInput(call.Arguments)))
			text, isError := run.Executor.Execute(ctx, call.Name, call.Arguments)
			if isError {
				telemetry.Warn("agent.tool_error", telemetry.Merge(run.Fields, map[string]any{
					"workflow": run.Workflow,
					"tool":     call.Name,
					"error":    text,
				}))
			}
			history = append(history, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    text,
			})
		}
	}

	outcome = "turn_limit"
	telemetry.Info("agent.turn_limit", telemetry.Merge(run.Fields, map[string]any{
		"workflow":  run.Workflow,
		"max_turns": maxTurns,
	}))
	return history, nil
}

func parseInput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if s, ok := v.(string); ok {
		var inner any
		if json.Unmarshal([]byte(s), &inner) == nil {
			return inner
		}
	}
	return v
}
