// Package session coordinates turns: it admits at most one active turn per
// session, runs the provider stream through the aggregator, and is the
// single emit/subscribe surface in front of the event buffer and router.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/relay/pkg/events"
	"github.com/codeready-toolchain/relay/pkg/stream"
)

var (
	// ErrTurnActive signals a second concurrent turn on the same session.
	ErrTurnActive = errors.New("another turn is active on this session")
	// ErrShuttingDown signals that new turns are being refused.
	ErrShuttingDown = errors.New("refusing new turns during shutdown")
)

// sinkQueueCap bounds pending sink writes. A sink that falls further
// behind loses events rather than stalling delivery.
const sinkQueueCap = 256

// TurnRequest is a validated request to start one turn.
type TurnRequest struct {
	ContextID string
	Prompt    string
	Metadata  map[string]any
}

// TurnSource produces the provider chunk stream for a turn. The concrete
// client (HTTP, test fake) lives behind this seam.
type TurnSource interface {
	Stream(ctx context.Context, req TurnRequest) (<-chan stream.Chunk, error)
}

// EventSink receives every buffered event for persistence. Failures are
// best-effort: logged, never blocking delivery.
type EventSink interface {
	Store(ctx context.Context, be events.BufferedEvent) error
}

// Config holds the coordinator's own knobs; buffer and router carry theirs.
type Config struct {
	IdleTTL       time.Duration // Idle period after which a session's buffer is reclaimed
	SweepInterval time.Duration // Idle sweep period; 0 disables the sweeper
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

type turn struct {
	taskID string
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator wires buffer, router, sink and turn source together.
type Coordinator struct {
	cfg    Config
	buffer *events.Buffer
	router *events.Router
	source TurnSource
	sink   EventSink // nil disables persistence
	logger *slog.Logger

	mu           sync.Mutex
	turns        map[string]*turn
	lastActivity map[string]time.Time
	accepting    bool

	lastUpdate atomic.Int64 // unix ms of the last emitted event

	sinkCh   chan events.BufferedEvent
	sinkDone chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCoordinator creates a coordinator and starts its idle sweep when
// SweepInterval is positive. sink may be nil.
func NewCoordinator(cfg Config, buffer *events.Buffer, router *events.Router, source TurnSource, sink EventSink, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		buffer:       buffer,
		router:       router,
		source:       source,
		sink:         sink,
		logger:       logger.With("component", "coordinator"),
		turns:        make(map[string]*turn),
		lastActivity: make(map[string]time.Time),
		accepting:    true,
		sinkDone:     make(chan struct{}),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	c.lastUpdate.Store(time.Now().UnixMilli())
	if sink != nil {
		c.sinkCh = make(chan events.BufferedEvent, sinkQueueCap)
		go c.sinkLoop()
	} else {
		close(c.sinkDone)
	}
	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.doneCh)
	}
	return c
}

// StartTurn admits and launches one turn for the session, returning its
// task id. The turn runs in its own goroutine; progress is observed through
// subscriptions.
func (c *Coordinator) StartTurn(req TurnRequest) (string, error) {
	c.mu.Lock()
	if !c.accepting {
		c.mu.Unlock()
		return "", ErrShuttingDown
	}
	if _, active := c.turns[req.ContextID]; active {
		c.mu.Unlock()
		return "", ErrTurnActive
	}
	t := &turn{taskID: uuid.New().String(), done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	c.turns[req.ContextID] = t
	c.lastActivity[req.ContextID] = time.Now()
	c.mu.Unlock()

	c.logger.Info("Turn started", "session_id", req.ContextID, "task_id", t.taskID)
	go c.runTurn(ctx, req, t)
	return t.taskID, nil
}

func (c *Coordinator) runTurn(ctx context.Context, req TurnRequest, t *turn) {
	defer close(t.done)
	defer func() {
		c.mu.Lock()
		if c.turns[req.ContextID] == t {
			delete(c.turns, req.ContextID)
		}
		c.mu.Unlock()
		t.cancel()
	}()

	emit := func(p events.Payload) {
		c.Emit(&events.Event{
			Kind:      p.Kind(),
			ContextID: req.ContextID,
			TaskID:    t.taskID,
			Timestamp: time.Now(),
			Payload:   p,
		})
	}

	emit(&events.TaskCreatedPayload{PromptLength: len(req.Prompt), Metadata: req.Metadata})
	emit(&events.TaskStatusPayload{Status: events.TaskStatusWorking})

	chunks, err := c.source.Stream(ctx, req)
	if err == nil {
		err = stream.NewAggregator().Run(ctx, chunks, emit)
	}

	switch {
	case err == nil:
		emit(&events.TaskCompletePayload{})
		c.logger.Info("Turn completed", "session_id", req.ContextID, "task_id", t.taskID)
	case errors.Is(err, context.Canceled):
		emit(&events.TaskStatusPayload{Status: events.TaskStatusCanceled})
		c.logger.Info("Turn canceled", "session_id", req.ContextID, "task_id", t.taskID)
	default:
		emit(&events.TaskStatusPayload{Status: events.TaskStatusFailed, Error: err.Error()})
		c.logger.Error("Turn failed", "session_id", req.ContextID, "task_id", t.taskID, "error", err)
	}
}

// Emit buffers the event, routes it to subscribers, and queues it for the
// sink when one is configured. This is the only path events take. The sink
// never delays delivery; when its queue is full the event is dropped from
// persistence only.
func (c *Coordinator) Emit(ev *events.Event) events.BufferedEvent {
	be := c.buffer.Add(ev)
	c.lastUpdate.Store(be.Timestamp.UnixMilli())
	c.touch(ev.ContextID)

	c.router.Route(be)

	if c.sink != nil {
		select {
		case c.sinkCh <- be:
		default:
			c.logger.Warn("Event sink queue full, dropping event", "event_id", be.ID)
		}
	}
	return be
}

// sinkLoop drains queued sink writes on its own goroutine. On shutdown it
// stores whatever is still queued, then exits.
func (c *Coordinator) sinkLoop() {
	defer close(c.sinkDone)
	for {
		select {
		case be := <-c.sinkCh:
			c.store(be)
		case <-c.stopCh:
			for {
				select {
				case be := <-c.sinkCh:
					c.store(be)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) store(be events.BufferedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.sink.Store(ctx, be); err != nil {
		c.logger.Warn("Event sink store failed", "event_id", be.ID, "error", err)
	}
}

// Subscribe registers a consumer and returns the replay determined by
// lastEventID (empty when there is nothing to resume). Callers deduplicate
// the live stream against the last replayed seq.
func (c *Coordinator) Subscribe(contextID string, filter events.Filter, lastEventID string) (*events.Subscription, []events.BufferedEvent) {
	c.touch(contextID)
	sub := c.router.Subscribe(contextID, filter)
	var replay []events.BufferedEvent
	if lastEventID != "" {
		for _, be := range c.buffer.EventsSince(contextID, lastEventID) {
			if filter.Matches(be.Event) {
				replay = append(replay, be)
			}
		}
	}
	return sub, replay
}

// Unsubscribe removes a subscription.
func (c *Coordinator) Unsubscribe(sub *events.Subscription) {
	c.router.Unsubscribe(sub)
}

// ActiveTask returns the task id of the session's running turn, if any.
func (c *Coordinator) ActiveTask(contextID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.turns[contextID]
	if !ok {
		return "", false
	}
	return t.taskID, true
}

// CancelTurn cooperatively cancels the session's running turn and waits
// for its terminal event. Returns false when no turn was active.
func (c *Coordinator) CancelTurn(contextID string) bool {
	c.mu.Lock()
	t, ok := c.turns[contextID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// Busy reports whether any turn is running.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns) > 0
}

// LastUpdate returns the unix-ms timestamp of the last emitted event
// (process start when none).
func (c *Coordinator) LastUpdate() int64 {
	return c.lastUpdate.Load()
}

func (c *Coordinator) touch(contextID string) {
	c.mu.Lock()
	c.lastActivity[contextID] = time.Now()
	c.mu.Unlock()
}

// sweepIdle reclaims sessions idle beyond IdleTTL: buffer cleared,
// subscriptions closed. Sessions with a running turn are never reclaimed.
func (c *Coordinator) sweepIdle() {
	if c.cfg.IdleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-c.cfg.IdleTTL)

	c.mu.Lock()
	var idle []string
	for id, last := range c.lastActivity {
		if _, active := c.turns[id]; active {
			continue
		}
		if last.Before(cutoff) {
			idle = append(idle, id)
			delete(c.lastActivity, id)
		}
	}
	c.mu.Unlock()

	for _, id := range idle {
		c.buffer.Clear(id)
		c.router.CloseSession(id)
		c.logger.Info("Idle session reclaimed", "session_id", id)
	}
}

func (c *Coordinator) sweepLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepIdle()
		case <-c.stopCh:
			return
		}
	}
}

// Shutdown stops admission, cancels every running turn, waits for their
// terminal events until ctx expires, then stops the idle sweep and drains
// queued sink writes.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.accepting = false
	running := make([]*turn, 0, len(c.turns))
	for _, t := range c.turns {
		running = append(running, t)
	}
	c.mu.Unlock()

	for _, t := range running {
		t.cancel()
	}
	for _, t := range running {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
	select {
	case <-c.sinkDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.logger.Info("Coordinator stopped", "canceled_turns", len(running))
	return nil
}
