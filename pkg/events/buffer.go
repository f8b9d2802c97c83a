package events

import (
	"log/slog"
	"sync"
	"time"
)

// BufferConfig controls retention for per-session event buffers.
type BufferConfig struct {
	MaxSize         int           // Events retained per session before the oldest are evicted
	TTL             time.Duration // Age past which retained events are discarded
	CleanupInterval time.Duration // Background sweep period; 0 disables the sweeper
}

// DefaultBufferConfig matches the documented defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxSize:         1000,
		TTL:             time.Hour,
		CleanupInterval: time.Minute,
	}
}

// sessionBuffer is one session's retained window: a fixed-capacity ring
// plus the monotonic seq counter. Seq assignment and insertion happen under
// the same lock, so buffer order equals seq order.
type sessionBuffer struct {
	mu      sync.Mutex
	seq     uint64
	ring    []BufferedEvent
	head    int // index of the oldest retained event
	count   int
	lastUse time.Time
}

func (sb *sessionBuffer) at(i int) *BufferedEvent {
	return &sb.ring[(sb.head+i)%len(sb.ring)]
}

// dropExpired trims expired events from the oldest end. Caller holds sb.mu.
func (sb *sessionBuffer) dropExpired(cutoff time.Time) {
	for sb.count > 0 && sb.at(0).Timestamp.Before(cutoff) {
		sb.head = (sb.head + 1) % len(sb.ring)
		sb.count--
	}
}

// Buffer retains the recent event window for every active session and
// assigns the per-session monotonic seq that event ids are built from.
type Buffer struct {
	cfg    BufferConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionBuffer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBuffer creates a buffer and starts the background expiry sweep when
// CleanupInterval is positive.
func NewBuffer(cfg BufferConfig, logger *slog.Logger) *Buffer {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultBufferConfig().MaxSize
	}
	b := &Buffer{
		cfg:      cfg,
		logger:   logger.With("component", "event_buffer"),
		sessions: make(map[string]*sessionBuffer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go b.sweepLoop()
	} else {
		close(b.doneCh)
	}
	return b
}

func (b *Buffer) session(contextID string) *sessionBuffer {
	b.mu.RLock()
	sb := b.sessions[contextID]
	b.mu.RUnlock()
	if sb != nil {
		return sb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sb = b.sessions[contextID]; sb == nil {
		sb = &sessionBuffer{ring: make([]BufferedEvent, b.cfg.MaxSize)}
		b.sessions[contextID] = sb
	}
	return sb
}

// Add assigns the next seq for the event's session, stamps the id, and
// retains the event, evicting the oldest entry when the window is full.
// The returned BufferedEvent is what gets routed and framed on the wire.
func (b *Buffer) Add(ev *Event) BufferedEvent {
	sb := b.session(ev.ContextID)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	sb.seq++
	be := BufferedEvent{
		ID:        FormatEventID(ev.ContextID, sb.seq),
		Seq:       sb.seq,
		Event:     ev,
		Timestamp: now,
	}

	if sb.count == len(sb.ring) {
		sb.head = (sb.head + 1) % len(sb.ring)
		sb.count--
	}
	sb.ring[(sb.head+sb.count)%len(sb.ring)] = be
	sb.count++
	sb.lastUse = now
	return be
}

// EventsSince returns the retained events with seq strictly greater than
// the one encoded in lastEventID, in seq order. An id that is malformed,
// from another session, or whose event is no longer retained yields an
// empty slice: the client cannot resume and starts from live.
func (b *Buffer) EventsSince(contextID, lastEventID string) []BufferedEvent {
	since, ok := ParseEventID(contextID, lastEventID)
	if !ok {
		return nil
	}

	b.mu.RLock()
	sb := b.sessions[contextID]
	b.mu.RUnlock()
	if sb == nil {
		return nil
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if b.cfg.TTL > 0 {
		sb.dropExpired(time.Now().Add(-b.cfg.TTL))
	}
	if sb.count == 0 || since > sb.seq {
		return nil
	}
	// The id is known only while its event is still retained.
	if since < sb.at(0).Seq {
		return nil
	}

	out := make([]BufferedEvent, 0, sb.seq-since)
	for i := 0; i < sb.count; i++ {
		if be := sb.at(i); be.Seq > since {
			out = append(out, *be)
		}
	}
	return out
}

// All returns the session's full retained window in seq order.
func (b *Buffer) All(contextID string) []BufferedEvent {
	b.mu.RLock()
	sb := b.sessions[contextID]
	b.mu.RUnlock()
	if sb == nil {
		return nil
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if b.cfg.TTL > 0 {
		sb.dropExpired(time.Now().Add(-b.cfg.TTL))
	}
	out := make([]BufferedEvent, sb.count)
	for i := 0; i < sb.count; i++ {
		out[i] = *sb.at(i)
	}
	return out
}

// Clear drops a session's retained events and seq counter. Used when the
// session itself is evicted for idleness.
func (b *Buffer) Clear(contextID string) {
	b.mu.Lock()
	delete(b.sessions, contextID)
	b.mu.Unlock()
}

// Cleanup runs one expiry pass: trims expired events in every session and
// drops sessions left empty and idle.
func (b *Buffer) Cleanup() {
	if b.cfg.TTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-b.cfg.TTL)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sb := range b.sessions {
		sb.mu.Lock()
		sb.dropExpired(cutoff)
		empty := sb.count == 0 && sb.lastUse.Before(cutoff)
		sb.mu.Unlock()
		if empty {
			delete(b.sessions, id)
		}
	}
}

func (b *Buffer) sweepLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Cleanup()
		case <-b.stopCh:
			return
		}
	}
}

// Shutdown stops the background sweep. Safe to call more than once.
func (b *Buffer) Shutdown() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
	b.logger.Debug("Event buffer stopped")
}
