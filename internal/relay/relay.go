package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/murmur/internal/event"
	"github.com/roach88/murmur/internal/filter"
	"github.com/roach88/murmur/internal/store"
	"github.com/roach88/murmur/internal/wire"
)

// Tunable defaults. Query limits cap backlog sizes; the send buffer bounds
// how far a slow client may fall behind before deliveries are dropped.
const (
	DefaultQueryLimit       = 500
	DefaultMaxQueryLimit    = 5000
	DefaultMaxSubscriptions = 32
	DefaultSendBuffer       = 512

	// authWindow is the accepted clock skew on authentication responses.
	authWindow = 10 * time.Minute
)

// Relay orchestrates sessions, the store, and the subscription registry.
// One Relay serves all connections of a process; everything it depends on
// is injected at construction.
type Relay struct {
	store    *store.Store
	registry *Registry
	verifier *event.Verifier
	metrics  *Metrics
	clock    clock.Clock
	log      *slog.Logger

	defaultQueryLimit int
	maxQueryLimit     int
	maxSubscriptions  int
	sendBuffer        int
	relayURL          string
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Relay) { r.log = log }
}

// WithClock sets the time source. Tests inject a mock clock.
func WithClock(c clock.Clock) Option {
	return func(r *Relay) { r.clock = c }
}

// WithMetrics registers relay metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Relay) { r.metrics = NewMetrics(reg) }
}

// WithQueryLimits overrides the default and maximum backlog query limits.
func WithQueryLimits(def, max int) Option {
	return func(r *Relay) {
		r.defaultQueryLimit = def
		r.maxQueryLimit = max
	}
}

// WithMaxSubscriptions caps concurrently open subscriptions per session.
func WithMaxSubscriptions(n int) Option {
	return func(r *Relay) { r.maxSubscriptions = n }
}

// WithRelayURL sets the canonical websocket URL clients name in
// authentication responses.
func WithRelayURL(url string) Option {
	return func(r *Relay) { r.relayURL = url }
}

// New creates a Relay on top of an opened store.
func New(st *store.Store, opts ...Option) (*Relay, error) {
	verifier, err := event.NewVerifier(0)
	if err != nil {
		return nil, fmt.Errorf("new relay: %w", err)
	}

	r := &Relay{
		store:             st,
		registry:          NewRegistry(),
		verifier:          verifier,
		clock:             clock.New(),
		log:               slog.Default(),
		defaultQueryLimit: DefaultQueryLimit,
		maxQueryLimit:     DefaultMaxQueryLimit,
		maxSubscriptions:  DefaultMaxSubscriptions,
		sendBuffer:        DefaultSendBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return r, nil
}

// NewSession creates the protocol state for a fresh connection and eagerly
// queues the authentication challenge.
func (r *Relay) NewSession() *Session {
	sess := newSession(r.sendBuffer)
	if msg, err := wire.MarshalAuthChallenge(sess.Challenge()); err == nil {
		sess.enqueue(msg)
	}
	r.log.Debug("session opened", "session", sess.ID())
	return sess
}

// Disconnect deregisters every subscription the session owns and closes
// its outbox. Idempotent, safe during in-flight fan-out.
func (r *Relay) Disconnect(sess *Session) {
	removed := r.registry.CloseAll(sess)
	if removed > 0 {
		r.metrics.SubscriptionsActive.Sub(float64(removed))
	}
	sess.close()
	r.log.Debug("session closed", "session", sess.ID(), "subscriptions_dropped", removed)
}

// HandleMessage processes one decoded frame from the session's read pump.
// No failure here terminates the session: malformed traffic is answered
// with a NOTICE, invalid events with an OK false.
func (r *Relay) HandleMessage(ctx context.Context, sess *Session, raw []byte) {
	msg, err := wire.ParseClientMessage(raw)
	if err != nil {
		r.notice(sess, err.Error())
		return
	}

	switch m := msg.(type) {
	case wire.EventEnvelope:
		r.handleEvent(ctx, sess, m.Event)
	case wire.ReqEnvelope:
		r.handleReq(ctx, sess, m.SubscriptionID, m.Filters)
	case wire.CloseEnvelope:
		r.handleClose(sess, m.SubscriptionID)
	case wire.AuthEnvelope:
		r.handleAuth(sess, m.Event)
	}
}

// handleEvent validates and submits one event, acknowledges it, and fans
// it out to matching live subscriptions (including, potentially, the
// submitter's own).
func (r *Relay) handleEvent(ctx context.Context, sess *Session, ev *event.Event) {
	if err := r.verifier.Validate(ev); err != nil {
		r.metrics.EventsRejected.Inc()
		r.ok(sess, ev.ID, false, reason(CodeInvalid, validationReason(err)))
		return
	}

	result, err := r.store.SubmitEvent(ctx, ev)
	if err != nil {
		// Storage trouble rejects the one submission; the connection and
		// every other session stay up.
		r.log.Error("submit failed", "event", ev.ID, "error", err)
		r.metrics.EventsRejected.Inc()
		r.ok(sess, ev.ID, false, reason(CodeError, "could not store event"))
		return
	}

	switch result.Status {
	case store.StatusAccepted, store.StatusReplaced, store.StatusEphemeral:
		r.metrics.EventsAccepted.Inc()
		r.ok(sess, ev.ID, true, "")
		r.fanout(ev)
	case store.StatusDuplicate:
		// Idempotent resubmission: acknowledged as accepted, no fan-out.
		r.ok(sess, ev.ID, true, reason(CodeDuplicate, "already have this event"))
	case store.StatusObsolete:
		r.metrics.EventsRejected.Inc()
		r.ok(sess, ev.ID, false, reason(CodeDuplicate, "newer event already stored for this key"))
	}
}

// fanout pushes the event to every matched live subscription. Best-effort
// per subscriber: a full or closed outbox never fails the broadcaster.
func (r *Relay) fanout(ev *event.Event) {
	for _, sub := range r.registry.Route(ev) {
		msg, err := wire.MarshalEvent(sub.ID, ev)
		if err != nil {
			continue
		}
		if sub.Session.enqueue(msg) {
			r.metrics.FanoutDeliveries.Inc()
		}
	}
}

// handleReq opens (or replaces) a subscription: validate filters, register
// pending, stream the backlog, mark end of stored results, then flush live
// events buffered while the backlog streamed.
func (r *Relay) handleReq(ctx context.Context, sess *Session, subID string, filters []filter.Filter) {
	for i := range filters {
		if err := filters[i].Validate(); err != nil {
			r.closed(sess, subID, reason(CodeInvalid, err.Error()))
			return
		}
	}

	replacing := r.registry.Close(sess, subID)
	if !replacing && r.registry.Count(sess) >= r.maxSubscriptions {
		r.closed(sess, subID, reason(CodeError, "too many open subscriptions"))
		return
	}

	sub := r.registry.Register(sess, subID, filters)
	if !replacing {
		r.metrics.SubscriptionsActive.Inc()
	}

	backlog, err := r.store.Query(ctx, filters, r.defaultQueryLimit, r.maxQueryLimit)
	if err != nil {
		r.log.Error("backlog query failed", "session", sess.ID(), "subscription", subID, "error", err)
		if r.registry.Close(sess, subID) {
			r.metrics.SubscriptionsActive.Dec()
		}
		r.closed(sess, subID, reason(CodeError, "could not query stored events"))
		return
	}

	delivered := make(map[string]struct{}, len(backlog))
	for i := range backlog {
		if msg, err := wire.MarshalEvent(subID, &backlog[i]); err == nil {
			sess.enqueue(msg)
		}
		delivered[backlog[i].ID] = struct{}{}
	}
	if msg, err := wire.MarshalEOSE(subID); err == nil {
		sess.enqueue(msg)
	}

	// Live events accepted while the backlog streamed were buffered; they
	// follow the end-of-stored-results marker, minus backlog duplicates.
	for _, ev := range r.registry.Activate(sub, delivered) {
		if msg, err := wire.MarshalEvent(subID, ev); err == nil {
			if sess.enqueue(msg) {
				r.metrics.FanoutDeliveries.Inc()
			}
		}
	}
}

// handleClose deregisters one subscription. Unknown ids are no-ops.
func (r *Relay) handleClose(sess *Session, subID string) {
	if r.registry.Close(sess, subID) {
		r.metrics.SubscriptionsActive.Dec()
	}
}

// handleAuth verifies an authentication response: a validly signed event
// of the auth kind, referencing the session's outstanding challenge,
// created within the accepted clock skew. Success transitions the session
// to authenticated; failure leaves it unauthenticated and the connection
// open.
func (r *Relay) handleAuth(sess *Session, ev *event.Event) {
	if err := r.verifier.Validate(ev); err != nil {
		r.ok(sess, ev.ID, false, reason(CodeInvalid, validationReason(err)))
		return
	}
	if ev.Kind != event.KindAuth {
		r.ok(sess, ev.ID, false, reason(CodeInvalid, fmt.Sprintf("auth event must be kind %d", event.KindAuth)))
		return
	}
	challenge, found := ev.TagValue("challenge")
	if !found || challenge != sess.Challenge() {
		r.ok(sess, ev.ID, false, reason(CodeInvalid, "challenge does not match"))
		return
	}
	if r.relayURL != "" {
		relayTag, found := ev.TagValue("relay")
		if !found || relayTag != r.relayURL {
			r.ok(sess, ev.ID, false, reason(CodeInvalid, "relay tag does not name this relay"))
			return
		}
	}
	skew := r.clock.Now().Unix() - ev.CreatedAt
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(authWindow/time.Second) {
		r.ok(sess, ev.ID, false, reason(CodeInvalid, "auth event timestamp is too far off"))
		return
	}

	sess.setAuthenticated(ev.PubKey)
	r.log.Debug("session authenticated", "session", sess.ID(), "pubkey", ev.PubKey)
	r.ok(sess, ev.ID, true, "")
}

// Sweep runs one expiration pass at the current time. The timer loop and
// the administrative trigger both land here.
func (r *Relay) Sweep(ctx context.Context) (int64, error) {
	deleted, err := r.store.DeleteExpired(ctx, r.clock.Now().Unix())
	if deleted > 0 {
		r.metrics.EventsSwept.Add(float64(deleted))
	}
	if err != nil {
		return deleted, fmt.Errorf("sweep: %w", err)
	}
	return deleted, nil
}

func (r *Relay) ok(sess *Session, eventID string, accepted bool, reason string) {
	if msg, err := wire.MarshalOK(eventID, accepted, reason); err == nil {
		sess.enqueue(msg)
	}
}

func (r *Relay) closed(sess *Session, subID, reason string) {
	if msg, err := wire.MarshalClosed(subID, reason); err == nil {
		sess.enqueue(msg)
	}
}

func (r *Relay) notice(sess *Session, message string) {
	if msg, err := wire.MarshalNotice(message); err == nil {
		sess.enqueue(msg)
	}
}

// validationReason maps a validation error to the acknowledgment wording.
func validationReason(err error) string {
	switch {
	case errors.Is(err, event.ErrBadID):
		return "id does not match content"
	case errors.Is(err, event.ErrBadSignature):
		return "signature verification failed"
	default:
		return "malformed event"
	}
}
