// Package testutil provides signing keypairs and event builders for tests.
package testutil

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/event"
)

// Signer holds a secp256k1 keypair and signs events the way a client
// would: id from the canonical serialization, sig a BIP-340 signature
// over the id.
type Signer struct {
	priv *secp256k1.PrivateKey

	// PubKey is the x-only public key in lowercase hex.
	PubKey string
}

// NewSigner generates a fresh keypair.
func NewSigner(t *testing.T) *Signer {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return &Signer{
		priv:   priv,
		PubKey: hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// Sign fills in PubKey, ID and Sig on the event.
func (s *Signer) Sign(t *testing.T, ev *event.Event) {
	t.Helper()
	ev.PubKey = s.PubKey

	id, err := ev.ComputeID()
	require.NoError(t, err)
	ev.ID = id

	idBytes, err := hex.DecodeString(id)
	require.NoError(t, err)
	sig, err := schnorr.Sign(s.priv, idBytes)
	require.NoError(t, err)
	ev.Sig = hex.EncodeToString(sig.Serialize())
}

// Event builds and signs an event.
func (s *Signer) Event(t *testing.T, kind int, createdAt int64, content string, tags ...[]string) *event.Event {
	t.Helper()
	ev := &event.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	s.Sign(t, ev)
	return ev
}
