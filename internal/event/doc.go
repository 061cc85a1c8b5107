// Package event provides the core event model for murmur.
//
// An event is an immutable, signed, content-addressed record. Its id is the
// SHA-256 of a canonical JSON serialization of the identity-bearing fields,
// and its sig is a BIP-340 Schnorr signature over that id, verifiable
// against the author's x-only public key.
//
// This package contains the event type, canonical serialization, kind
// classification, and validation. It imports nothing internal; every other
// internal package imports it.
package event
