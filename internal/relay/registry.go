package relay

import (
	"sync"

	"github.com/roach88/murmur/internal/event"
	"github.com/roach88/murmur/internal/filter"
)

// maxPendingBuffer bounds the live events buffered for a subscription
// whose backlog is still streaming. Overflow is dropped oldest-first;
// delivery during backlog is best-effort for pathologically slow opens.
const maxPendingBuffer = 1024

// Subscription is a named, filter-bearing standing request on a session.
// The session owns it; the registry holds the index used for fan-out.
type Subscription struct {
	Session *Session
	ID      string
	Filters []filter.Filter

	// guarded by the registry mutex
	pending bool
	buffer  []*event.Event
}

// Registry tracks live subscriptions across all sessions and decides, for
// any event, the set of subscriptions it matches. Safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	subs map[*Session]map[string]*Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[*Session]map[string]*Subscription)}
}

// Register adds a subscription in the pending state: fan-out buffers
// matching events instead of delivering them until Activate. Re-declaring
// an existing id on the same session replaces that subscription.
func (r *Registry) Register(sess *Session, id string, filters []filter.Filter) *Subscription {
	sub := &Subscription{
		Session: sess,
		ID:      id,
		Filters: filters,
		pending: true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	bySession, ok := r.subs[sess]
	if !ok {
		bySession = make(map[string]*Subscription)
		r.subs[sess] = bySession
	}
	bySession[id] = sub
	return sub
}

// Activate transitions a pending subscription to live and returns the
// buffered events not named in exclude (ids already delivered in the
// backlog), in arrival order. A no-op for subscriptions already replaced
// or closed.
func (r *Registry) Activate(sub *Subscription, exclude map[string]struct{}) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The session may have re-declared or closed the id while the backlog
	// was streaming; only the registered instance goes live.
	if current := r.subs[sub.Session][sub.ID]; current != sub {
		return nil
	}

	sub.pending = false
	buffered := sub.buffer
	sub.buffer = nil

	if len(exclude) == 0 {
		return buffered
	}
	kept := buffered[:0]
	for _, ev := range buffered {
		if _, dup := exclude[ev.ID]; !dup {
			kept = append(kept, ev)
		}
	}
	return kept
}

// Close deregisters one subscription. Closing an unknown id is a no-op.
// Returns whether a subscription was removed.
func (r *Registry) Close(sess *Session, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bySession, ok := r.subs[sess]
	if !ok {
		return false
	}
	if _, ok := bySession[id]; !ok {
		return false
	}
	delete(bySession, id)
	if len(bySession) == 0 {
		delete(r.subs, sess)
	}
	return true
}

// CloseAll deregisters every subscription owned by the session. Idempotent.
// Returns the number removed.
func (r *Registry) CloseAll(sess *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.subs[sess])
	delete(r.subs, sess)
	return n
}

// Count returns the number of subscriptions the session currently holds.
func (r *Registry) Count(sess *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[sess])
}

// Route returns every live subscription whose filter set matches the event
// (OR across a subscription's filters). Matching runs against the registry
// snapshot at call time; pending subscriptions buffer the event instead of
// appearing in the result, preserving backlog-before-live ordering.
func (r *Registry) Route(ev *event.Event) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*Subscription
	for _, bySession := range r.subs {
		for _, sub := range bySession {
			if !filter.MatchesAny(sub.Filters, ev) {
				continue
			}
			if sub.pending {
				if len(sub.buffer) >= maxPendingBuffer {
					sub.buffer = sub.buffer[1:]
				}
				sub.buffer = append(sub.buffer, ev)
				continue
			}
			matched = append(matched, sub)
		}
	}
	return matched
}
