package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/relay/pkg/events"
)

// EventStore persists buffered events to the events table. It implements
// the coordinator's sink seam; failures there are best-effort, so Store
// only reports errors, it never retries.
type EventStore struct {
	client *Client
	logger *slog.Logger
}

// NewEventStore creates a store over an open client.
func NewEventStore(client *Client, logger *slog.Logger) *EventStore {
	return &EventStore{
		client: client,
		logger: logger.With("component", "event_store"),
	}
}

// Store inserts one buffered event. The full wire JSON goes into the
// payload column; context_id and seq are lifted out for indexed lookup.
func (s *EventStore) Store(ctx context.Context, be events.BufferedEvent) error {
	payload, err := json.Marshal(be.Event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", be.ID, err)
	}

	_, err = s.client.DB().ExecContext(ctx,
		`INSERT INTO events (context_id, seq, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (context_id, seq) DO NOTHING`,
		be.Event.ContextID, be.Seq, be.Event.Kind, payload, be.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", be.ID, err)
	}
	return nil
}

// StoredEvent is one persisted row.
type StoredEvent struct {
	ContextID string
	Seq       uint64
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// SessionEvents returns a session's persisted events in seq order.
func (s *EventStore) SessionEvents(ctx context.Context, contextID string) ([]StoredEvent, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT context_id, seq, kind, payload, created_at
		 FROM events WHERE context_id = $1 ORDER BY seq`,
		contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", contextID, err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		if err := rows.Scan(&se.ContextID, &se.Seq, &se.Kind, &se.Payload, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes persisted events created before cutoff and
// returns how many were dropped.
func (s *EventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM events WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired events: %w", err)
	}
	return res.RowsAffected()
}

// RunRetention deletes expired rows every interval until ctx ends. Run it
// in its own goroutine.
func (s *EventStore) RunRetention(ctx context.Context, interval, window time.Duration) {
	if interval <= 0 || window <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteOlderThan(ctx, time.Now().Add(-window))
			if err != nil {
				s.logger.Warn("Event retention sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("Event retention sweep", "deleted", n)
			}
		}
	}
}
