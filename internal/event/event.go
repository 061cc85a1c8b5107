package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Event is a signed, content-addressed record submitted by a client.
//
// ID, PubKey and Sig are lowercase hex: 32, 32 and 64 bytes respectively.
// CreatedAt is author-supplied unix seconds, not server time.
//
// Language is derived at index time by the content classifier and is not
// part of the event's identity; it never appears on the wire.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`

	Language string `json:"-"`
}

// Serialize returns the canonical byte form the event id is computed over:
// a JSON array [0, pubkey, created_at, kind, tags, content] with HTML
// escaping disabled. Any two events with equal identity fields serialize to
// identical bytes.
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode([]any{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content})
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}

	// Encoder appends a trailing newline; it is not part of the canonical form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the hex SHA-256 of the canonical serialization.
func (e *Event) ComputeID() (string, error) {
	ser, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// TagValue returns the value of the first tag with the given name.
// Tags with fewer than two elements are skipped.
func (e *Event) TagValue(name string) (string, bool) {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// DTag returns the value of the first "d" tag, or the empty string if
// absent. A missing "d" tag on a parameterized replaceable event is treated
// as the empty parameter.
func (e *Event) DTag() string {
	v, _ := e.TagValue("d")
	return v
}

// Expiration returns the unix timestamp of the first "expiration" tag.
// Returns ok=false if the tag is absent or does not parse as an integer.
func (e *Event) Expiration() (int64, bool) {
	v, found := e.TagValue("expiration")
	if !found {
		return 0, false
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
