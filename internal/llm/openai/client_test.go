package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stackdocs-backend/internal/llm"
)

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isGPT5(tt.model); got != tt.want {
				t.Fatalf("isGPT5(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestChatSendsToolsAndParsesToolCalls(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"choices": [{"message": {"role": "assistant", "content": "Reading the document.",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "read_ocr", "arguments": "{}"}}]}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	client, err := NewClient("test-key", "gpt-4o", server.URL+"/v1", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.Chat(context.Background(), llm.Request{
		System: "You extract data.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Extract."},
		},
		Tools: []llm.ToolSpec{{Name: "read_ocr", Description: "Read OCR text"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	messages, _ := got["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system plus user message, got %v", got["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("expected system message first, got %v", first)
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected one tool, got %v", got["tools"])
	}
	if got["temperature"] != float64(0) {
		t.Fatalf("expected temperature 0, got %v", got["temperature"])
	}

	if resp.Message.Content != "Reading the document." {
		t.Fatalf("unexpected content %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Name != "read_ocr" || resp.Message.ToolCalls[0].ID != "call_1" {
		t.Fatalf("unexpected tool calls: %+v", resp.Message.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage 15, got %d", resp.Usage.TotalTokens)
	}
}

func TestChatReplaysToolHistory(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Done."}}]}`)
	}))
	defer server.Close()

	client, err := NewClient("k", "gpt-5-mini", server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "go"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "complete", Arguments: json.RawMessage(`{}`)}}},
			{Role: llm.RoleTool, ToolCallID: "c1", Name: "complete", Content: "Extraction complete. 2 fields saved."},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Temperature != nil {
		t.Fatalf("expected temperature omitted for gpt-5 models")
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[1].ToolCalls[0].Function.Arguments != "{}" {
		t.Fatalf("unexpected arguments %q", got.Messages[1].ToolCalls[0].Function.Arguments)
	}
	if got.Messages[2].Role != "tool" || got.Messages[2].ToolCallID != "c1" {
		t.Fatalf("unexpected tool message %+v", got.Messages[2])
	}
}

func TestChatSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	}))
	defer server.Close()

	client, _ := NewClient("k", "gpt-4o", server.URL, time.Second)
	_, err := client.Chat(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	if err == nil || err.Error() != "openai error: rate limited (requests)" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRawArgumentsQuotesInvalidJSON(t *testing.T) {
	if got := string(rawArguments(`{"path":"total"}`)); got != `{"path":"total"}` {
		t.Fatalf("unexpected %s", got)
	}
	if got := string(rawArguments(`not json`)); got != `"not json"` {
		t.Fatalf("unexpected %s", got)
	}
	if got := string(rawArguments(``)); got != `{}` {
		t.Fatalf("unexpected %s", got)
	}
}
