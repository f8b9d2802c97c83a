// Package events provides the typed event model, the per-session replay
// buffer, and the subscription router that together form relay's streaming
// core.
//
// ════════════════════════════════════════════════════════════════
// Event Delivery
// ════════════════════════════════════════════════════════════════
//
// Every event a client observes takes the same path:
//
//	emit → Buffer.Add (seq assigned) → Router.Route → subscription queues
//
// There is no skip-buffer path: an event that was never buffered is never
// delivered, which is what makes Last-Event-ID resume coherent. A client
// reconnecting mid-turn sends the last id it saw ("{contextId}-{seq}") and
// receives the retained tail in order, then the live stream, with no
// duplicates and no gaps inside the retention window.
//
// A streaming turn produces:
//
//	task-created
//	task-status        {status: "working"}
//	content-delta      {delta: "..."}   (repeated)
//	thought-stream     {content: "..."} (reasoning lifted out of the text)
//	tool-call          {tool_call_id, tool_name, arguments}
//	content-complete   {content: "full text"}
//	task-complete                        (or a terminal task-status)
//
// Deltas are incremental; clients concatenate locally for a live typing
// effect and receive the full text once via content-complete.
//
// Kinds carrying the "internal:" prefix are suppressed for subscribers
// unless their filter opts in with AllowInternal.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Task lifecycle kinds.
const (
	KindTaskCreated  = "task-created"
	KindTaskStatus   = "task-status"
	KindTaskComplete = "task-complete"
)

// Content kinds.
const (
	KindContentDelta    = "content-delta"
	KindContentComplete = "content-complete"
)

// KindThoughtStream carries reasoning extracted from inline tags in the
// model output.
const KindThoughtStream = "thought-stream"

// Tool kinds.
const (
	KindToolCall   = "tool-call"
	KindToolResult = "tool-result"
)

// KindLLMUsage carries token counters reported by the upstream provider.
const KindLLMUsage = "llm-usage"

// InternalKindPrefix marks events filtered out for subscribers that did not
// opt in with AllowInternal.
const InternalKindPrefix = "internal:"

// Task status values used in TaskStatusPayload.Status.
const (
	TaskStatusWorking   = "working"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCanceled  = "canceled"
)

// Payload is the kind-specific portion of an event. Implementations live in
// payloads.go; Kind returns the discriminator they serialize under.
type Payload interface {
	Kind() string
}

// Event is one entry in a session's stream: the envelope fields shared by
// every kind plus the kind-specific payload. On the wire it is one flat
// JSON object discriminated by "kind".
type Event struct {
	Kind      string
	ContextID string
	TaskID    string
	Timestamp time.Time
	Payload   Payload
}

// IsInternal reports whether the event kind carries the internal prefix.
func (e *Event) IsInternal() bool {
	return strings.HasPrefix(e.Kind, InternalKindPrefix)
}

type envelope struct {
	Kind      string `json:"kind"`
	ContextID string `json:"context_id"`
	TaskID    string `json:"task_id,omitempty"`
	Timestamp string `json:"timestamp"` // RFC3339Nano, UTC
}

// MarshalJSON flattens the envelope and the payload into a single object.
func (e *Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if e.Payload != nil {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
		}
		if err := json.Unmarshal(payloadJSON, &m); err != nil {
			return nil, fmt.Errorf("failed to flatten %s payload: %w", e.Kind, err)
		}
	}
	m["kind"] = e.Kind
	m["context_id"] = e.ContextID
	if e.TaskID != "" {
		m["task_id"] = e.TaskID
	}
	m["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(m)
}

// payloadFactories maps each known kind to its payload type. Inbound
// decoding rejects kinds missing from this table, except internal kinds,
// which carry free-form payloads.
var payloadFactories = map[string]func() Payload{
	KindTaskCreated:     func() Payload { return &TaskCreatedPayload{} },
	KindTaskStatus:      func() Payload { return &TaskStatusPayload{} },
	KindTaskComplete:    func() Payload { return &TaskCompletePayload{} },
	KindContentDelta:    func() Payload { return &ContentDeltaPayload{} },
	KindContentComplete: func() Payload { return &ContentCompletePayload{} },
	KindThoughtStream:   func() Payload { return &ThoughtStreamPayload{} },
	KindToolCall:        func() Payload { return &ToolCallPayload{} },
	KindToolResult:      func() Payload { return &ToolResultPayload{} },
	KindLLMUsage:        func() Payload { return &LLMUsagePayload{} },
}

// UnmarshalEvent decodes a wire event, dispatching on "kind". Unknown
// non-internal kinds are rejected.
func UnmarshalEvent(data []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("event is missing kind")
	}

	ev := &Event{
		Kind:      env.Kind,
		ContextID: env.ContextID,
		TaskID:    env.TaskID,
	}
	if env.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid event timestamp %q: %w", env.Timestamp, err)
		}
		ev.Timestamp = ts
	}

	factory, ok := payloadFactories[env.Kind]
	if !ok {
		if !strings.HasPrefix(env.Kind, InternalKindPrefix) {
			return nil, fmt.Errorf("unknown event kind %q", env.Kind)
		}
		p := &InternalPayload{InternalKind: env.Kind}
		if err := json.Unmarshal(data, &p.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode internal payload: %w", err)
		}
		ev.Payload = p
		return ev, nil
	}

	p := factory()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
	}
	ev.Payload = p
	return ev, nil
}

// BufferedEvent is an event after buffering: assigned the session-scoped
// monotonic seq and the stable id clients use for resume.
type BufferedEvent struct {
	ID        string
	Seq       uint64
	Event     *Event
	Timestamp time.Time
}

// FormatEventID builds the stable event id "{contextId}-{seq}".
func FormatEventID(contextID string, seq uint64) string {
	return contextID + "-" + strconv.FormatUint(seq, 10)
}

// ParseEventID extracts the seq from an event id for the given session.
// Returns false for ids belonging to another session or malformed ids;
// callers treat that as "no resume point".
func ParseEventID(contextID, eventID string) (uint64, bool) {
	prefix := contextID + "-"
	if !strings.HasPrefix(eventID, prefix) {
		return 0, false
	}
	seq, err := strconv.ParseUint(eventID[len(prefix):], 10, 64)
	if err != nil || seq == 0 {
		return 0, false
	}
	return seq, true
}
