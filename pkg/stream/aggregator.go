package stream

import (
	"context"
	"strings"

	"github.com/codeready-toolchain/relay/pkg/events"
)

// Aggregator turns one provider chunk stream into relay's event payloads:
// text deltas are split into user content and thought tags, tool-call
// fragments are assembled, usage is passed through, and the full visible
// text is emitted once at end of stream.
type Aggregator struct {
	assembler *Assembler
	extractor *Extractor
	content   strings.Builder
}

// NewAggregator creates an aggregator for a single turn.
func NewAggregator() *Aggregator {
	return &Aggregator{
		assembler: NewAssembler(),
		extractor: NewExtractor(),
	}
}

// Run consumes chunks until the channel closes, the context is canceled,
// or the stream reports an error, calling emit for each derived payload in
// order. On cancellation or upstream error, partial tool-call assemblies
// and pending extractor bytes are discarded and the error is returned; the
// caller decides the terminal event.
func (a *Aggregator) Run(ctx context.Context, chunks <-chan Chunk, emit func(events.Payload)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				a.finish(emit)
				return nil
			}
			if err := a.consume(chunk, emit); err != nil {
				return err
			}
		}
	}
}

func (a *Aggregator) consume(chunk Chunk, emit func(events.Payload)) error {
	switch c := chunk.(type) {
	case TextChunk:
		a.emitParts(a.extractor.Feed(c.Delta), emit)
	case ToolCallChunk:
		if call := a.assembler.Feed(c); call != nil {
			emitToolCall(*call, emit)
		}
	case UsageChunk:
		emit(&events.LLMUsagePayload{
			InputTokens:  c.InputTokens,
			OutputTokens: c.OutputTokens,
			TotalTokens:  c.TotalTokens,
		})
	case ErrorChunk:
		return c.Err
	}
	return nil
}

// finish drains both transducers and emits the assembled full text.
func (a *Aggregator) finish(emit func(events.Payload)) {
	a.emitParts(a.extractor.Flush(), emit)
	for _, call := range a.assembler.Flush() {
		emitToolCall(call, emit)
	}
	emit(&events.ContentCompletePayload{Content: a.content.String()})
}

func (a *Aggregator) emitParts(parts []Part, emit func(events.Payload)) {
	for _, p := range parts {
		if p.Tag != nil {
			emit(&events.ThoughtStreamPayload{
				Content:    p.Tag.Content,
				Attributes: p.Tag.Attributes,
			})
			continue
		}
		a.content.WriteString(p.Content)
		emit(&events.ContentDeltaPayload{Delta: p.Content})
	}
}

func emitToolCall(call ToolCall, emit func(events.Payload)) {
	emit(&events.ToolCallPayload{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
	})
}
