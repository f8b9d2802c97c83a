package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/relay/pkg/events"
)

// setSSEHeaders prepares the response for an event stream.
func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// writeEvent frames one event. json.Marshal escapes newlines inside
// strings, so the data line never contains a bare newline.
func writeEvent(w gin.ResponseWriter, be events.BufferedEvent) error {
	data, err := json.Marshal(be.Event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", be.ID, err)
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", be.ID, be.Event.Kind, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// writeKeepalive sends an off-the-record comment line: no id, no buffer
// entry.
func writeKeepalive(w gin.ResponseWriter) error {
	if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// streamEvents writes the replay batch and then the live subscription
// until a terminal event for taskID, client disconnect, or subscription
// close. Live events at or below the last written seq are skipped, so a
// resume never duplicates its own replay.
func (s *Server) streamEvents(c *gin.Context, sub *events.Subscription, replay []events.BufferedEvent, taskID string) {
	w := c.Writer
	var lastSeq uint64

	for _, be := range replay {
		if err := writeEvent(w, be); err != nil {
			s.logger.Debug("Replay write failed", "subscription_id", sub.ID, "error", err)
			return
		}
		lastSeq = be.Seq
		if isTerminal(be, taskID) {
			return
		}
	}

	var keepalive <-chan time.Time
	var ticker *time.Ticker
	if s.heartbeat > 0 {
		ticker = time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			s.logger.Debug("Client disconnected", "subscription_id", sub.ID)
			return
		case <-keepalive:
			if err := writeKeepalive(w); err != nil {
				return
			}
		case be, ok := <-sub.C():
			if !ok {
				return
			}
			if be.Seq <= lastSeq {
				continue
			}
			if err := writeEvent(w, be); err != nil {
				s.logger.Debug("Event write failed", "subscription_id", sub.ID, "error", err)
				return
			}
			// Keepalives measure silence, not wall time.
			if ticker != nil {
				ticker.Reset(s.heartbeat)
			}
			lastSeq = be.Seq
			if isTerminal(be, taskID) {
				return
			}
		}
	}
}

// isTerminal reports whether the event ends the stream for the given task.
func isTerminal(be events.BufferedEvent, taskID string) bool {
	if taskID == "" || be.Event.TaskID != taskID {
		return false
	}
	switch p := be.Event.Payload.(type) {
	case *events.TaskCompletePayload:
		return true
	case *events.TaskStatusPayload:
		return p.Status != events.TaskStatusWorking
	}
	return false
}
