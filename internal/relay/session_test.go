package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_FreshIdentifiers(t *testing.T) {
	a := newSession(4)
	b := newSession(4)

	assert.NotEmpty(t, a.ID())
	assert.NotEmpty(t, a.Challenge())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEqual(t, a.Challenge(), b.Challenge())
}

func TestSession_EnqueueAndDrain(t *testing.T) {
	s := newSession(4)

	require.True(t, s.enqueue([]byte("one")))
	require.True(t, s.enqueue([]byte("two")))

	assert.Equal(t, []byte("one"), <-s.Outbox())
	assert.Equal(t, []byte("two"), <-s.Outbox())
}

func TestSession_EnqueueFullBufferDrops(t *testing.T) {
	s := newSession(1)

	require.True(t, s.enqueue([]byte("fits")))
	assert.False(t, s.enqueue([]byte("dropped")), "a full outbox never blocks the caller")

	assert.Equal(t, []byte("fits"), <-s.Outbox())
	assert.True(t, s.enqueue([]byte("again")))
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := newSession(4)
	s.enqueue([]byte("queued"))

	s.close()
	s.close()

	assert.False(t, s.enqueue([]byte("late")))

	// Queued messages drain, then the channel reports closed.
	msg, ok := <-s.Outbox()
	assert.True(t, ok)
	assert.Equal(t, []byte("queued"), msg)
	_, ok = <-s.Outbox()
	assert.False(t, ok)
}

func TestSession_Authentication(t *testing.T) {
	s := newSession(4)
	assert.Empty(t, s.AuthenticatedPubKey())

	s.setAuthenticated("abcd")
	assert.Equal(t, "abcd", s.AuthenticatedPubKey())
}
