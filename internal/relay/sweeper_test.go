package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/testutil"
)

func TestSweeper_DefaultInterval(t *testing.T) {
	r, _ := newTestRelay(t)
	s := NewSweeper(r, 0)
	assert.Equal(t, DefaultSweepInterval, s.interval)
}

func TestSweeper_RunSweepsOnTick(t *testing.T) {
	r, mock := newTestRelay(t)
	signer := testutil.NewSigner(t)

	ev := signer.Event(t, 1, testNow, "transient",
		[]string{"expiration", "1700000100"})
	_, err := r.store.SubmitEvent(context.Background(), ev)
	require.NoError(t, err)

	mock.Set(time.Unix(1700000200, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewSweeper(r, time.Minute).Run(ctx)
	}()

	// Let Run install its ticker before advancing the mock clock.
	time.Sleep(10 * time.Millisecond)
	mock.Add(time.Minute)

	require.Eventually(t, func() bool {
		stored, err := r.store.HasEvent(context.Background(), ev.ID)
		return err == nil && !stored
	}, time.Second, 5*time.Millisecond, "tick should trigger an expiration pass")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
