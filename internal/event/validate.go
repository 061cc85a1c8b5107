package event

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Validation failure reasons. Validate wraps these with detail; callers
// match with errors.Is to pick an acknowledgment reason.
var (
	// ErrBadID means the stored fields do not hash to the claimed id.
	ErrBadID = errors.New("id does not match content")
	// ErrBadSignature means sig does not verify against pubkey and id.
	ErrBadSignature = errors.New("signature verification failed")
	// ErrMalformed means a field fails structural sanity checks.
	ErrMalformed = errors.New("malformed event")
)

// DefaultPubKeyCacheSize bounds the parsed-pubkey cache. Relays see the
// same authors repeatedly, so parsing each x-only key once is worthwhile.
const DefaultPubKeyCacheSize = 4096

// Verifier checks event authenticity. It is a pure computation over the
// event's fields - no storage or network access - and is safe for
// concurrent use.
type Verifier struct {
	pubkeys *lru.Cache[string, *secp256k1.PublicKey]
}

// NewVerifier creates a Verifier with a parsed-pubkey cache of the given
// size. Sizes below 1 fall back to DefaultPubKeyCacheSize.
func NewVerifier(cacheSize int) (*Verifier, error) {
	if cacheSize < 1 {
		cacheSize = DefaultPubKeyCacheSize
	}
	cache, err := lru.New[string, *secp256k1.PublicKey](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("new verifier: %w", err)
	}
	return &Verifier{pubkeys: cache}, nil
}

// Validate checks, in order: that recomputing the content hash reproduces
// the event id, that sig is a valid Schnorr signature over the id, and that
// the remaining fields are structurally sane. Returns nil for a valid
// event; otherwise an error wrapping ErrBadID, ErrBadSignature or
// ErrMalformed.
func (v *Verifier) Validate(e *Event) error {
	if e.Kind < 0 {
		return fmt.Errorf("%w: negative kind %d", ErrMalformed, e.Kind)
	}
	if e.CreatedAt < 0 {
		return fmt.Errorf("%w: negative created_at %d", ErrMalformed, e.CreatedAt)
	}
	for _, tag := range e.Tags {
		if len(tag) == 0 {
			return fmt.Errorf("%w: empty tag entry", ErrMalformed)
		}
	}

	id, err := e.ComputeID()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if id != e.ID {
		return fmt.Errorf("%w: computed %s", ErrBadID, id)
	}

	pub, err := v.parsePubKey(e.PubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("%w: sig is not hex", ErrBadSignature)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil || len(idBytes) != sha256Size {
		return fmt.Errorf("%w: id is not a 32-byte hex digest", ErrMalformed)
	}

	if !sig.Verify(idBytes, pub) {
		return ErrBadSignature
	}
	return nil
}

const sha256Size = 32

// parsePubKey parses an x-only hex public key, caching the result.
func (v *Verifier) parsePubKey(pubkey string) (*secp256k1.PublicKey, error) {
	if cached, ok := v.pubkeys.Get(pubkey); ok {
		return cached, nil
	}

	raw, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, fmt.Errorf("pubkey is not hex")
	}
	if len(raw) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("pubkey is %d bytes, want %d", len(raw), schnorr.PubKeyBytesLen)
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey: %w", err)
	}

	v.pubkeys.Add(pubkey, pub)
	return pub, nil
}
