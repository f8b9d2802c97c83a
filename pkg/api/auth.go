package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenDecoder validates bearer tokens. Credential policy lives behind
// this seam; deployments without auth pass a nil decoder.
type TokenDecoder interface {
	Decode(token string) error
}

// authorize enforces the bearer token when a decoder is configured:
// missing credentials yield 401, rejected ones 403. Returns false after
// writing the error response.
func (s *Server) authorize(c *gin.Context) bool {
	if s.decoder == nil {
		return true
	}

	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if header == "" || !ok || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return false
	}
	if err := s.decoder.Decode(token); err != nil {
		s.logger.Warn("Token rejected", "error", err)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		return false
	}
	return true
}
