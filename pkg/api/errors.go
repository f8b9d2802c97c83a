package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/relay/pkg/session"
)

// mapServiceError maps coordinator errors to HTTP error responses.
func mapServiceError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrTurnActive) {
		c.JSON(http.StatusConflict, gin.H{"error": "another turn is active on this session"})
		return
	}
	if errors.Is(err, session.ErrShuttingDown) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is not accepting new turns"})
		return
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
