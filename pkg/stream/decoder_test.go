package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestDecodeSSE(t *testing.T) {
	t.Run("decodes content deltas until the done sentinel", func(t *testing.T) {
		body := strings.Join([]string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			``,
			`data: [DONE]`,
			``,
		}, "\n")

		chunks := drain(t, DecodeSSE(context.Background(), strings.NewReader(body)))
		require.Len(t, chunks, 2)
		assert.Equal(t, TextChunk{Delta: "Hel"}, chunks[0])
		assert.Equal(t, TextChunk{Delta: "lo"}, chunks[1])
	})

	t.Run("decodes indexed tool-call fragments", func(t *testing.T) {
		body := strings.Join([]string{
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather"}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"location\":\"SF\"}"}}]}}]}`,
			`data: [DONE]`,
		}, "\n")

		chunks := drain(t, DecodeSSE(context.Background(), strings.NewReader(body)))
		require.Len(t, chunks, 2)

		first, ok := chunks[0].(ToolCallChunk)
		require.True(t, ok)
		assert.Equal(t, 0, first.Index)
		assert.Equal(t, "call_1", first.ID)
		assert.Equal(t, "function", first.Type)
		assert.Equal(t, "get_weather", first.Name)

		second, ok := chunks[1].(ToolCallChunk)
		require.True(t, ok)
		assert.Equal(t, `{"location":"SF"}`, second.Arguments)
	})

	t.Run("emits usage from the final delta", func(t *testing.T) {
		body := strings.Join([]string{
			`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":34,"total_tokens":46}}`,
			`data: [DONE]`,
		}, "\n")

		chunks := drain(t, DecodeSSE(context.Background(), strings.NewReader(body)))
		require.Len(t, chunks, 1)
		assert.Equal(t, UsageChunk{InputTokens: 12, OutputTokens: 34, TotalTokens: 46}, chunks[0])
	})

	t.Run("ignores comments and blank lines", func(t *testing.T) {
		body := strings.Join([]string{
			`: keepalive`,
			``,
			`event: message`,
			`data: {"choices":[{"delta":{"content":"x"}}]}`,
			`data: [DONE]`,
		}, "\n")

		chunks := drain(t, DecodeSSE(context.Background(), strings.NewReader(body)))
		require.Len(t, chunks, 1)
		assert.Equal(t, TextChunk{Delta: "x"}, chunks[0])
	})

	t.Run("surfaces malformed payloads as a terminal error chunk", func(t *testing.T) {
		body := "data: {not json\n"
		chunks := drain(t, DecodeSSE(context.Background(), strings.NewReader(body)))
		require.Len(t, chunks, 1)
		errChunk, ok := chunks[0].(ErrorChunk)
		require.True(t, ok)
		assert.ErrorContains(t, errChunk.Err, "failed to decode stream delta")
	})

	t.Run("stream without sentinel ends at EOF", func(t *testing.T) {
		body := `data: {"choices":[{"delta":{"content":"only"}}]}` + "\n"
		chunks := drain(t, DecodeSSE(context.Background(), strings.NewReader(body)))
		require.Len(t, chunks, 1)
	})

	t.Run("cancellation stops the decoder", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ch := DecodeSSE(ctx, strings.NewReader(`data: {"choices":[{"delta":{"content":"x"}}]}`))
		for range ch {
		}
	})
}
