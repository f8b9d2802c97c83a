package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultSubscriberQueueCap bounds a subscription's pending-event queue.
const DefaultSubscriberQueueCap = 256

// Filter selects which of a session's events a subscription receives.
// Zero value means "every non-internal event of the session".
type Filter struct {
	TaskID        string   // Only events for this task; "" matches all
	IncludeKinds  []string // When non-empty, only these kinds
	ExcludeKinds  []string // Kinds never delivered
	AllowInternal bool     // Deliver "internal:"-prefixed kinds too
}

// Matches applies the filter clauses in order: task, internal gate,
// include list, exclude list.
func (f *Filter) Matches(ev *Event) bool {
	if f.TaskID != "" && ev.TaskID != f.TaskID {
		return false
	}
	if ev.IsInternal() && !f.AllowInternal {
		return false
	}
	if len(f.IncludeKinds) > 0 && !containsKind(f.IncludeKinds, ev.Kind) {
		return false
	}
	if containsKind(f.ExcludeKinds, ev.Kind) {
		return false
	}
	return true
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Subscription is one consumer's bounded queue of a session's events.
// Events arrive on C in seq order; C is closed when the subscription is
// removed, whether by Unsubscribe or by the slow-subscriber policy.
type Subscription struct {
	ID        string
	ContextID string
	Filter    Filter

	ch chan BufferedEvent

	mu     sync.Mutex
	closed bool
}

// C is the subscription's receive channel.
func (s *Subscription) C() <-chan BufferedEvent { return s.ch }

// deliver enqueues without blocking. Returns false when the queue is full,
// which marks the subscriber as too slow to keep.
func (s *Subscription) deliver(be BufferedEvent) (delivered, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.ch <- be:
		return true, true
	default:
		return false, true
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Router fans buffered events out to per-session subscriber sets. Routing
// never blocks on a consumer: a subscription whose queue is full is closed
// and removed so one stalled client cannot hold back the rest.
type Router struct {
	queueCap int
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[string]*Subscription
}

// NewRouter creates a router with the given per-subscriber queue capacity
// (DefaultSubscriberQueueCap when <= 0).
func NewRouter(queueCap int, logger *slog.Logger) *Router {
	if queueCap <= 0 {
		queueCap = DefaultSubscriberQueueCap
	}
	return &Router{
		queueCap: queueCap,
		logger:   logger.With("component", "event_router"),
		sessions: make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a consumer for a session's events.
func (r *Router) Subscribe(contextID string, filter Filter) *Subscription {
	sub := &Subscription{
		ID:        uuid.New().String(),
		ContextID: contextID,
		Filter:    filter,
		ch:        make(chan BufferedEvent, r.queueCap),
	}

	r.mu.Lock()
	subs := r.sessions[contextID]
	if subs == nil {
		subs = make(map[string]*Subscription)
		r.sessions[contextID] = subs
	}
	subs[sub.ID] = sub
	count := len(subs)
	r.mu.Unlock()

	r.logger.Debug("Subscriber added",
		"session_id", contextID,
		"subscription_id", sub.ID,
		"session_subscribers", count)
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Removing a
// subscription that is already gone is a no-op.
func (r *Router) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	if subs := r.sessions[sub.ContextID]; subs != nil {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(r.sessions, sub.ContextID)
		}
	}
	r.mu.Unlock()
	sub.close()
}

// Route delivers a buffered event to every matching subscription of its
// session and returns how many received it. Subscribers whose queues are
// full are dropped.
func (r *Router) Route(be BufferedEvent) int {
	r.mu.RLock()
	subs := r.sessions[be.Event.ContextID]
	// Snapshot under lock so slow-subscriber removal can take the write lock.
	snapshot := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		if !sub.Filter.Matches(be.Event) {
			continue
		}
		ok, open := sub.deliver(be)
		switch {
		case ok:
			delivered++
		case open:
			r.logger.Warn("Dropping slow subscriber",
				"session_id", sub.ContextID,
				"subscription_id", sub.ID,
				"event_id", be.ID)
			r.Unsubscribe(sub)
		}
	}
	return delivered
}

// CloseSession removes every subscription of a session, closing their
// channels. Used on session eviction and shutdown.
func (r *Router) CloseSession(contextID string) {
	r.mu.Lock()
	subs := r.sessions[contextID]
	delete(r.sessions, contextID)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// RouterStats is a point-in-time view of the router's fan-out state.
type RouterStats struct {
	Sessions      int
	Subscriptions int
}

// Stats counts sessions with at least one subscriber and total
// subscriptions.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := RouterStats{Sessions: len(r.sessions)}
	for _, subs := range r.sessions {
		st.Subscriptions += len(subs)
	}
	return st
}

// Shutdown closes every subscription.
func (r *Router) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]map[string]*Subscription)
	r.mu.Unlock()

	for _, subs := range sessions {
		for _, sub := range subs {
			sub.close()
		}
	}
	r.logger.Debug("Event router stopped")
}
