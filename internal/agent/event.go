package agent

import "encoding/json"

// EventType tags a streamed agent event.
type EventType string

const (
	EventText     EventType = "text"
	EventTool     EventType = "tool"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one item streamed to the client while an agent runs.
type Event struct {
	Type             EventType
	Text             string
	Tool             string
	Input            any
	ExtractionID     string
	SessionID        string
	ProcessingTimeMS *int64
	Error            string
}

// TextEvent wraps assistant prose.
func TextEvent(text string) Event { return Event{Type: EventText, Text: text} }

// ToolEvent reports a tool invocation with its parsed input.
func ToolEvent(name string, input any) Event {
	return Event{Type: EventTool, Tool: name, Input: input}
}

// ErrorEvent reports a terminal failure.
func ErrorEvent(msg string) Event { return Event{Type: EventError, Error: msg} }

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// MarshalJSON renders the wire shape for each event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventText:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{e.Text})
	case EventTool:
		input := e.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Tool  string `json:"tool"`
			Input any    `json:"input"`
		}{e.Tool, input})
	case EventComplete:
		return json.Marshal(struct {
			Complete         bool   `json:"complete"`
			ExtractionID     string `json:"extraction_id,omitempty"`
			SessionID        string `json:"session_id,omitempty"`
			ProcessingTimeMS *int64 `json:"processing_time_ms,omitempty"`
		}{true, e.ExtractionID, e.SessionID, e.ProcessingTimeMS})
	default:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Error})
	}
}
