package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/relay/pkg/stream"
)

// HTTPSource streams turns from an OpenAI-compatible chat completions
// endpoint.
type HTTPSource struct {
	URL    string
	Model  string
	APIKey string
	Client *http.Client
}

// NewHTTPSource creates a source with a client tuned for long-lived
// streaming responses (no overall timeout; cancellation comes from the
// turn context).
func NewHTTPSource(url, model, apiKey string) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Model:  model,
		APIKey: apiKey,
		Client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

// Stream starts the completion request and returns the decoded chunk
// stream. The response body is closed when the stream drains or the
// context ends.
func (s *HTTPSource) Stream(ctx context.Context, req TurnRequest) (<-chan stream.Chunk, error) {
	payload := chatRequest{
		Model:    s.Model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   true,
	}
	payload.StreamOptions.IncludeUsage = true

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if s.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("completion request returned %d: %s", resp.StatusCode, detail)
	}

	decoded := stream.DecodeSSE(ctx, resp.Body)
	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for chunk := range decoded {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
