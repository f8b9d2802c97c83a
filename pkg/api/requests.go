package api

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
)

// sessionHeader is the canonical session id header; the long-form alias is
// accepted for clients written against the original deployment surface.
const (
	sessionHeader      = "X-Session-Id"
	sessionHeaderAlias = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"
)

// invocationRequest is the parsed invocation body: the prompt plus any
// extra top-level fields, carried through as metadata.
type invocationRequest struct {
	Prompt   string
	Metadata map[string]any
}

// sessionID extracts the session id from the request headers.
func sessionID(c *gin.Context) string {
	if id := c.GetHeader(sessionHeader); id != "" {
		return id
	}
	return c.GetHeader(sessionHeaderAlias)
}

// parseInvocation decodes and validates the request body.
func parseInvocation(body io.Reader) (*invocationRequest, error) {
	var fields map[string]any
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	prompt, _ := fields["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("prompt must be a non-empty string")
	}
	delete(fields, "prompt")
	if len(fields) == 0 {
		fields = nil
	}
	return &invocationRequest{Prompt: prompt, Metadata: fields}, nil
}
