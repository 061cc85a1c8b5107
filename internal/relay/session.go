package relay

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the per-connection protocol state: an optional authenticated
// pubkey, the outstanding auth challenge, and the outbound message queue
// the transport's write pump drains.
//
// A session starts unauthenticated with a challenge already issued (the
// relay sends it eagerly on connect). A verified authentication response
// transitions it to authenticated; failure leaves it unauthenticated and
// is not fatal.
type Session struct {
	id        string
	challenge string

	mu         sync.Mutex
	authPubkey string
	closed     bool
	send       chan []byte
}

// newSession allocates a session with a fresh challenge nonce and an
// outbound queue of the given capacity.
func newSession(sendBuffer int) *Session {
	return &Session{
		id:        uuid.Must(uuid.NewV7()).String(),
		challenge: uuid.Must(uuid.NewV7()).String(),
		send:      make(chan []byte, sendBuffer),
	}
}

// ID returns the server-assigned connection id, used only for logging.
func (s *Session) ID() string { return s.id }

// Challenge returns the issued auth challenge nonce.
func (s *Session) Challenge() string { return s.challenge }

// AuthenticatedPubKey returns the verified author identity, or "" while
// the session is unauthenticated.
func (s *Session) AuthenticatedPubKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authPubkey
}

func (s *Session) setAuthenticated(pubkey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authPubkey = pubkey
}

// Outbox returns the channel the transport write pump reads. The channel
// is closed when the session closes.
func (s *Session) Outbox() <-chan []byte { return s.send }

// enqueue appends an outbound message. Best-effort: returns false without
// blocking if the session is closed or its queue is full, so a slow or
// just-closed subscriber never stalls a broadcaster.
func (s *Session) enqueue(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// close marks the session closed and closes the outbox. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}
