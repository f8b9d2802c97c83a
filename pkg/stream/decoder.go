package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// scanBufSize caps a single SSE line; providers ship large argument deltas
// on one line.
const scanBufSize = 1024 * 1024

// wireDelta mirrors the OpenAI-compatible streamed completion shape, kept
// to the fields relay consumes.
type wireDelta struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// DecodeSSE reads an OpenAI-compatible SSE response body and emits chunks
// until the "[DONE]" sentinel, end of body, or context cancellation. The
// returned channel is closed when the stream ends; a read or parse failure
// surfaces as a final ErrorChunk.
func DecodeSSE(ctx context.Context, body io.Reader) <-chan Chunk {
	out := make(chan Chunk, 16)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), scanBufSize)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}

			var delta wireDelta
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				send(ctx, out, ErrorChunk{Err: fmt.Errorf("failed to decode stream delta: %w", err)})
				return
			}
			for _, chunk := range deltaChunks(&delta) {
				if !send(ctx, out, chunk) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(ctx, out, ErrorChunk{Err: fmt.Errorf("stream read failed: %w", err)})
		}
	}()
	return out
}

func deltaChunks(delta *wireDelta) []Chunk {
	var chunks []Chunk
	if len(delta.Choices) > 0 {
		d := &delta.Choices[0].Delta
		if d.Content != "" {
			chunks = append(chunks, TextChunk{Delta: d.Content})
		}
		for _, tc := range d.ToolCalls {
			chunks = append(chunks, ToolCallChunk{
				Index:     tc.Index,
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if delta.Usage != nil {
		chunks = append(chunks, UsageChunk{
			InputTokens:  delta.Usage.PromptTokens,
			OutputTokens: delta.Usage.CompletionTokens,
			TotalTokens:  delta.Usage.TotalTokens,
		})
	}
	return chunks
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
