// Package api exposes relay's HTTP surface: the invocation endpoint that
// streams a turn over SSE, and the ping probe.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/relay/pkg/session"
)

// Server holds the handlers' dependencies.
type Server struct {
	coordinator   *session.Coordinator
	decoder       TokenDecoder // nil disables auth
	heartbeat     time.Duration
	allowInternal bool
	logger        *slog.Logger
}

// NewServer creates the API server. decoder may be nil; heartbeat 0
// disables SSE keepalives.
func NewServer(coordinator *session.Coordinator, decoder TokenDecoder, heartbeat time.Duration, logger *slog.Logger) *Server {
	return &Server{
		coordinator: coordinator,
		decoder:     decoder,
		heartbeat:   heartbeat,
		logger:      logger.With("component", "api"),
	}
}

// SetAllowInternal makes subscriptions created by the invocation handler
// receive internal events too. Off by default.
func (s *Server) SetAllowInternal(allow bool) {
	s.allowInternal = allow
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// The singular form is an alias kept for clients written against
	// deployments that registered it.
	r.POST("/invocations", s.invocationHandler)
	r.POST("/invocation", s.invocationHandler)
	r.GET("/ping", s.pingHandler)
	return r
}
