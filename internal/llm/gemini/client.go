package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	"stackdocs-backend/internal/llm"
	"stackdocs-backend/internal/shared/telemetry"
)

// Client implements llm.Client on Gemini function calling.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient opens a Gemini client for model.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Close releases the underlying connection.
func (c *Client) Close() error { return c.client.Close() }

// Chat replays the history into a chat session and sends the final turn.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "gemini.chat", attribute.String("gemini.model", c.model))
	defer span.End()

	contents := toContents(req.Messages)
	if len(contents) == 0 {
		return llm.Response{}, errors.New("gemini: empty conversation")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return llm.Response{}, errors.New("gemini: conversation must end with a user or tool turn")
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0)
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}

	session := model.StartChat()
	session.History = contents[:len(contents)-1]
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		span.RecordError(err)
		return llm.Response{}, err
	}

	out, err := fromResponse(resp)
	if err != nil {
		return llm.Response{}, err
	}
	span.SetAttributes(attribute.Int("gemini.total_tokens", out.Usage.TotalTokens))
	return out, nil
}

func toContents(messages []llm.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				content.Parts = append(content.Parts, genai.FunctionCall{Name: call.Name, Args: argsMap(call.Arguments)})
			}
			if len(content.Parts) == 0 {
				content.Parts = append(content.Parts, genai.Text(""))
			}
			out = append(out, content)
		case llm.RoleTool:
			part := genai.FunctionResponse{
				Name:     m.Name,
				Response: map[string]any{"content": m.Content},
			}
			// consecutive tool results share one user turn
			if n := len(out); n > 0 && out[n-1].Role == "user" && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return out
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return len(c.Parts) > 0
}

func argsMap(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			_ = json.Unmarshal([]byte(s), &out)
		}
	}
	return out
}

func toDeclarations(specs []llm.ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decl := &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if spec.Parameters != nil && len(spec.Parameters.Properties) > 0 {
			decl.Parameters = toSchema(spec.Parameters)
		}
		out = append(out, decl)
	}
	return out
}

// toSchema maps the tool schema onto Gemini's typed subset. Free-form
// values and objects without declared properties become strings; the tool
// layer parses JSON strings back into structures.
func toSchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return &genai.Schema{Type: genai.TypeString}
	}
	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case "object":
		if len(s.Properties) == 0 {
			out.Type = genai.TypeString
			return out
		}
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
		out.Required = append([]string(nil), s.Required...)
	case "array":
		out.Type = genai.TypeArray
		out.Items = toSchema(s.Items)
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	return out
}

func fromResponse(resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.Response{}, errors.New("gemini response missing candidates")
	}
	msg := llm.Message{Role: llm.RoleAssistant}
	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if s := string(p); s != "" {
				text = append(text, s)
			}
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return llm.Response{}, fmt.Errorf("encode function args: %w", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      p.Name,
				Arguments: args,
			})
		}
	}
	msg.Content = strings.Join(text, "")

	out := llm.Response{Message: msg}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

var _ llm.Client = (*Client)(nil)
