package workflows

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"stackdocs-backend/internal/agent"
	"stackdocs-backend/internal/documents"
	"stackdocs-backend/internal/extractions"
	"stackdocs-backend/internal/llm"
	"stackdocs-backend/internal/ocr"
)

// scriptedLLM replays canned assistant turns and records requests.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []llm.Message
	err      error
	requests []llm.Request
}

func (s *scriptedLLM) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	if len(s.replies) == 0 {
		return llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: "Nothing more to do."}}, nil
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return llm.Response{Message: next}, nil
}

func (s *scriptedLLM) Model() string { return "scripted" }

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func turn(text string, calls ...llm.ToolCall) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: text, ToolCalls: calls}
}

type env struct {
	deps  Deps
	model *scriptedLLM
	docs  *documents.MemoryRepo
	exts  *extractions.MemoryRepo
	ocrs  *ocr.MemoryRepo
	sess  *agent.MemorySessionStore
}

func newEnv(t *testing.T, replies ...llm.Message) env {
	t.Helper()
	ctx := context.Background()
	model := &scriptedLLM{replies: replies}
	docs := documents.NewMemoryRepo()
	exts := extractions.NewMemoryRepo()
	ocrs := ocr.NewMemoryRepo()
	sess := agent.NewMemorySessionStore()

	if err := docs.Create(ctx, documents.Document{ID: "doc-1", UserID: "user-1", FileName: "invoice.pdf", Status: documents.StatusOCRComplete}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if err := ocrs.Upsert(ctx, ocr.Result{DocumentID: "doc-1", UserID: "user-1", RawText: "Invoice #42 Total $10"}); err != nil {
		t.Fatalf("upsert ocr: %v", err)
	}

	return env{
		deps: Deps{
			Runner:      &agent.Runner{LLM: model},
			Sessions:    sess,
			Documents:   docs,
			Extractions: exts,
			OCR:         ocrs,
		},
		model: model,
		docs:  docs,
		exts:  exts,
		ocrs:  ocrs,
		sess:  sess,
	}
}

func (e env) createExtraction(t *testing.T, id string) {
	t.Helper()
	err := e.exts.Create(context.Background(), extractions.Extraction{
		ID:         id,
		DocumentID: "doc-1",
		UserID:     "user-1",
		Mode:       extractions.ModeAuto,
		Status:     extractions.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("create extraction: %v", err)
	}
}

func collect(events *[]agent.Event) func(agent.Event) {
	return func(ev agent.Event) { *events = append(*events, ev) }
}

func terminalCount(events []agent.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Terminal() {
			n++
		}
	}
	return n
}
