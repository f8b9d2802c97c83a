package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/relay/pkg/events"
	"github.com/codeready-toolchain/relay/pkg/session"
)

// invocationHandler handles POST /invocations: it starts a turn for the
// session and streams its events back over SSE.
//
// A request carrying Last-Event-ID while a turn is already running does
// not conflict: it attaches to the running turn, replaying the missed
// window first. 409 is reserved for attempts to start a second turn.
func (s *Server) invocationHandler(c *gin.Context) {
	contextID := sessionID(c)
	if contextID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + sessionHeader + " header"})
		return
	}
	if !s.authorize(c) {
		return
	}

	req, err := parseInvocation(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lastEventID := c.GetHeader("Last-Event-ID")
	taskID, err := s.coordinator.StartTurn(session.TurnRequest{
		ContextID: contextID,
		Prompt:    req.Prompt,
		Metadata:  req.Metadata,
	})
	if err != nil {
		if errors.Is(err, session.ErrTurnActive) && lastEventID != "" {
			// Reconnect: resume the running turn instead of refusing.
			active, ok := s.coordinator.ActiveTask(contextID)
			if ok {
				s.logger.Info("Resuming active turn",
					"session_id", contextID, "task_id", active, "last_event_id", lastEventID)
				s.stream(c, contextID, active, lastEventID)
				return
			}
			// The turn finished in between; fall through to a fresh start.
			taskID, err = s.coordinator.StartTurn(session.TurnRequest{
				ContextID: contextID,
				Prompt:    req.Prompt,
				Metadata:  req.Metadata,
			})
		}
		if err != nil {
			mapServiceError(c, err)
			return
		}
	}

	s.stream(c, contextID, taskID, lastEventID)
}

// stream subscribes before reading the replay, so no event emitted in
// between is lost; duplicates are filtered by seq in streamEvents.
func (s *Server) stream(c *gin.Context, contextID, taskID, lastEventID string) {
	sub, replay := s.coordinator.Subscribe(contextID, events.Filter{AllowInternal: s.allowInternal}, lastEventID)
	defer s.coordinator.Unsubscribe(sub)

	setSSEHeaders(c)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	s.streamEvents(c, sub, replay, taskID)
}
