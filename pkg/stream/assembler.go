package stream

import (
	"encoding/json"
	"sort"
	"strings"
)

// ToolCall is a fully assembled tool invocation request.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object, verbatim as streamed
}

// slot accumulates one indexed call's fragments.
type slot struct {
	id      string
	typ     string
	name    string
	args    strings.Builder
	emitted bool
}

// Assembler reassembles tool calls from streamed fragments. Providers
// split one call across many fragments sharing an index: the first usually
// carries id and name, the rest carry argument pieces that concatenate in
// arrival order.
//
// A call is emitted exactly once, as soon as it is provably complete: its
// name is known and its accumulated arguments parse as JSON. Fragments
// arriving for an already-emitted index are dropped.
type Assembler struct {
	slots map[int]*slot
}

// NewAssembler creates an empty assembler. One assembler serves one
// provider stream.
func NewAssembler() *Assembler {
	return &Assembler{slots: make(map[int]*slot)}
}

// Feed merges one fragment into its slot and returns the completed call
// when this fragment completed it, else nil.
func (a *Assembler) Feed(frag ToolCallChunk) *ToolCall {
	s := a.slots[frag.Index]
	if s == nil {
		s = &slot{}
		a.slots[frag.Index] = s
	}
	if s.emitted {
		return nil
	}

	if frag.ID != "" {
		s.id = frag.ID
	}
	if frag.Type != "" {
		s.typ = frag.Type
	}
	if frag.Name != "" {
		s.name = frag.Name
	}
	s.args.WriteString(frag.Arguments)

	if call := s.complete(); call != nil {
		s.emitted = true
		return call
	}
	return nil
}

// complete returns the call when the slot satisfies the emit predicate.
func (s *slot) complete() *ToolCall {
	if s.name == "" {
		return nil
	}
	args := strings.TrimSpace(s.args.String())
	if args == "" || !json.Valid([]byte(args)) {
		return nil
	}
	return &ToolCall{ID: s.id, Name: s.name, Arguments: args}
}

// Flush emits the remaining complete calls in ascending index order and
// discards partial slots. Called once at end of stream; the assembler is
// empty afterwards.
func (a *Assembler) Flush() []ToolCall {
	indexes := make([]int, 0, len(a.slots))
	for i, s := range a.slots {
		if !s.emitted {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	var calls []ToolCall
	for _, i := range indexes {
		if call := a.slots[i].complete(); call != nil {
			calls = append(calls, *call)
		}
	}
	a.slots = make(map[int]*slot)
	return calls
}
