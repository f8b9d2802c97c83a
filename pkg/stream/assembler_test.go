package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerSingleCall(t *testing.T) {
	t.Run("assembles one call from chunked arguments", func(t *testing.T) {
		a := NewAssembler()

		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, ID: "call_1"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Name: "get_weather"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Arguments: `{"location": `}))

		call := a.Feed(ToolCallChunk{Index: 0, Arguments: `"San Francisco"}`})
		require.NotNil(t, call)
		assert.Equal(t, "call_1", call.ID)
		assert.Equal(t, "get_weather", call.Name)
		assert.Equal(t, `{"location": "San Francisco"}`, call.Arguments)

		assert.Empty(t, a.Flush(), "emitted call is not re-emitted by flush")
	})

	t.Run("emits at most once per index", func(t *testing.T) {
		a := NewAssembler()
		first := a.Feed(ToolCallChunk{Index: 0, Name: "f", Arguments: `{}`})
		require.NotNil(t, first)

		assert.Nil(t, a.Feed(ToolCallChunk{Index: 0, Arguments: `{"late":1}`}))
		assert.Empty(t, a.Flush())
	})

	t.Run("waits for a name before emitting", func(t *testing.T) {
		a := NewAssembler()
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Arguments: `{"k":1}`}))

		call := a.Feed(ToolCallChunk{Index: 0, Name: "f"})
		require.NotNil(t, call)
		assert.Equal(t, "f", call.Name)
	})

	t.Run("later fragments override id and name", func(t *testing.T) {
		a := NewAssembler()
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, ID: "old", Name: "old_name"}))
		call := a.Feed(ToolCallChunk{Index: 0, ID: "new", Name: "new_name", Arguments: `{}`})
		require.NotNil(t, call)
		assert.Equal(t, "new", call.ID)
		assert.Equal(t, "new_name", call.Name)
	})

	t.Run("trims whitespace around arguments", func(t *testing.T) {
		a := NewAssembler()
		call := a.Feed(ToolCallChunk{Index: 0, Name: "f", Arguments: "  {\"k\": 1}\n"})
		require.NotNil(t, call)
		assert.Equal(t, `{"k": 1}`, call.Arguments)
	})
}

func TestAssemblerInterleavedCalls(t *testing.T) {
	t.Run("keeps fragments separated by index", func(t *testing.T) {
		a := NewAssembler()

		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, ID: "a"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 1, ID: "b"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Name: "t0"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 1, Name: "t1"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Arguments: `{"k":`}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 1, Arguments: `{"v":`}))

		c0 := a.Feed(ToolCallChunk{Index: 0, Arguments: ` "a"}`})
		require.NotNil(t, c0)
		c1 := a.Feed(ToolCallChunk{Index: 1, Arguments: ` "b"}`})
		require.NotNil(t, c1)

		assert.Equal(t, "t0", c0.Name)
		assert.Equal(t, `{"k": "a"}`, c0.Arguments)
		assert.Equal(t, "t1", c1.Name)
		assert.Equal(t, `{"v": "b"}`, c1.Arguments)
	})
}

func TestAssemblerFlush(t *testing.T) {
	t.Run("discards calls whose arguments never became valid", func(t *testing.T) {
		a := NewAssembler()
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, ID: "c1", Name: "f"}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Arguments: `{"incomplete":`}))

		assert.Empty(t, a.Flush())
	})

	t.Run("mixes completed and discarded slots", func(t *testing.T) {
		a := NewAssembler()
		done := a.Feed(ToolCallChunk{Index: 0, Name: "done", Arguments: `{"a":1}`})
		require.NotNil(t, done)
		require.Nil(t, a.Feed(ToolCallChunk{Index: 1, Name: "partial", Arguments: `{"b":`}))
		require.Nil(t, a.Feed(ToolCallChunk{Index: 2, Arguments: `{"nameless":1}`}))

		assert.Empty(t, a.Flush(), "partials are dropped, completed slots stay emitted-once")
	})

	t.Run("flush resets the assembler", func(t *testing.T) {
		a := NewAssembler()
		require.Nil(t, a.Feed(ToolCallChunk{Index: 0, Arguments: `{"x":`}))
		a.Flush()

		// A fresh stream may reuse index 0 from scratch.
		call := a.Feed(ToolCallChunk{Index: 0, Name: "f", Arguments: `{}`})
		require.NotNil(t, call)
		assert.Equal(t, `{}`, call.Arguments)
	})
}
