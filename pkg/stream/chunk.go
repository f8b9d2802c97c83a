// Package stream turns a provider's streamed output into relay's typed
// events: decoding SSE deltas into chunks, assembling fragmented tool
// calls, extracting inline tags from the text, and aggregating a whole
// turn.
package stream

// Chunk is one unit of streamed provider output. The concrete types below
// are the full set; consumers switch on them.
type Chunk interface {
	isChunk()
}

// TextChunk is an incremental slice of answer text.
type TextChunk struct {
	Delta string
}

// ToolCallChunk is one fragment of a streamed tool call. Providers split a
// call across many fragments addressed by Index; Arguments pieces
// concatenate in arrival order.
type ToolCallChunk struct {
	Index     int
	ID        string // Provider call id; "" when this fragment carries none
	Type      string // Usually "function"; "" when not repeated
	Name      string
	Arguments string
}

// UsageChunk carries the provider's token counters, reported once at end
// of stream.
type UsageChunk struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ErrorChunk reports a mid-stream failure. The stream ends after it.
type ErrorChunk struct {
	Err error
}

func (TextChunk) isChunk()     {}
func (ToolCallChunk) isChunk() {}
func (UsageChunk) isChunk()    {}
func (ErrorChunk) isChunk()    {}
