package events

import "encoding/json"

// Typed payloads for each event kind. Field sets are the wire contract;
// clients discriminate on the envelope's "kind".

// TaskCreatedPayload announces a new turn for a session.
type TaskCreatedPayload struct {
	PromptLength int            `json:"prompt_length,omitempty"` // Size of the submitted prompt in bytes
	Metadata     map[string]any `json:"metadata,omitempty"`      // Caller-supplied request metadata
}

func (p *TaskCreatedPayload) Kind() string { return KindTaskCreated }

// TaskStatusPayload reports a turn status transition. Terminal statuses are
// "completed", "failed" and "canceled".
type TaskStatusPayload struct {
	Status string `json:"status"`          // working | completed | failed | canceled
	Error  string `json:"error,omitempty"` // Failure detail when status is "failed"
}

func (p *TaskStatusPayload) Kind() string { return KindTaskStatus }

// TaskCompletePayload marks a successful end of turn.
type TaskCompletePayload struct{}

func (p *TaskCompletePayload) Kind() string { return KindTaskComplete }

// ContentDeltaPayload is one incremental slice of answer text. Clients
// concatenate deltas in arrival order.
type ContentDeltaPayload struct {
	Delta string `json:"delta"`
}

func (p *ContentDeltaPayload) Kind() string { return KindContentDelta }

// ContentCompletePayload carries the full assembled answer text, emitted
// once after the final delta.
type ContentCompletePayload struct {
	Content string `json:"content"`
}

func (p *ContentCompletePayload) Kind() string { return KindContentComplete }

// ThoughtStreamPayload carries reasoning text lifted out of inline tags in
// the model output. Attribute values are strings, or string arrays when the
// tag repeated a key.
type ThoughtStreamPayload struct {
	Content    string         `json:"content"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (p *ThoughtStreamPayload) Kind() string { return KindThoughtStream }

// ToolCallPayload is a completed tool invocation request assembled from
// streamed fragments. Arguments is the raw JSON argument object as a string.
type ToolCallPayload struct {
	ToolCallID string `json:"tool_call_id,omitempty"` // Provider call id, when one was supplied
	ToolName   string `json:"tool_name"`
	Arguments  string `json:"arguments"` // JSON object, verbatim from the provider
}

func (p *ToolCallPayload) Kind() string { return KindToolCall }

// ToolResultPayload reports the outcome of an executed tool call.
type ToolResultPayload struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (p *ToolResultPayload) Kind() string { return KindToolResult }

// LLMUsagePayload carries token counters reported by the provider at end of
// stream.
type LLMUsagePayload struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (p *LLMUsagePayload) Kind() string { return KindLLMUsage }

// InternalPayload holds the free-form body of an "internal:"-prefixed
// event. These never reach subscribers that did not opt in.
type InternalPayload struct {
	InternalKind string         `json:"-"`
	Fields       map[string]any `json:"-"`
}

func (p *InternalPayload) Kind() string { return p.InternalKind }

// MarshalJSON emits the free-form fields as the payload body.
func (p *InternalPayload) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}
