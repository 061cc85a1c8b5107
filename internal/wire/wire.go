// Package wire encodes and decodes the relay's JSON protocol messages.
//
// Messages are JSON arrays tagged by a string in position 0. Client
// messages decode once at the transport boundary into a closed set of
// envelope types; server messages are built by the Marshal helpers.
// Everything beyond this package works with typed envelopes, never raw
// arrays.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/murmur/internal/event"
	"github.com/roach88/murmur/internal/filter"
)

// Client-to-relay message tags.
const (
	TagEvent = "EVENT"
	TagReq   = "REQ"
	TagClose = "CLOSE"
	TagAuth  = "AUTH"
)

// Relay-to-client message tags.
const (
	TagOK     = "OK"
	TagEOSE   = "EOSE"
	TagClosed = "CLOSED"
	TagNotice = "NOTICE"
)

// ErrMalformed reports a message that does not parse as a known command.
// The session answers with a NOTICE and stays open.
var ErrMalformed = errors.New("malformed message")

// ClientMessage is the closed set of messages a client may send. The only
// implementations live in this package.
type ClientMessage interface {
	clientMessage()
}

// EventEnvelope is ["EVENT", <event>]: a submission.
type EventEnvelope struct {
	Event *event.Event
}

// ReqEnvelope is ["REQ", <sub id>, <filter>...]: open or replace a
// subscription with one or more filters.
type ReqEnvelope struct {
	SubscriptionID string
	Filters        []filter.Filter
}

// CloseEnvelope is ["CLOSE", <sub id>]: drop a subscription.
type CloseEnvelope struct {
	SubscriptionID string
}

// AuthEnvelope is ["AUTH", <signed auth event>]: respond to the relay's
// authentication challenge.
type AuthEnvelope struct {
	Event *event.Event
}

func (EventEnvelope) clientMessage() {}
func (ReqEnvelope) clientMessage()   {}
func (CloseEnvelope) clientMessage() {}
func (AuthEnvelope) clientMessage()  {}

// ParseClientMessage decodes one client message. All failures wrap
// ErrMalformed; the caller does not need to distinguish bad JSON from an
// unknown tag.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array", ErrMalformed)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformed)
	}

	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: tag is not a string", ErrMalformed)
	}

	switch tag {
	case TagEvent:
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: EVENT wants 2 elements, got %d", ErrMalformed, len(parts))
		}
		ev := new(event.Event)
		if err := json.Unmarshal(parts[1], ev); err != nil {
			return nil, fmt.Errorf("%w: bad event object: %v", ErrMalformed, err)
		}
		return EventEnvelope{Event: ev}, nil

	case TagReq:
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: REQ wants a subscription id and at least one filter", ErrMalformed)
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: subscription id is not a string", ErrMalformed)
		}
		filters := make([]filter.Filter, 0, len(parts)-2)
		for _, raw := range parts[2:] {
			var f filter.Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("%w: bad filter: %v", ErrMalformed, err)
			}
			filters = append(filters, f)
		}
		return ReqEnvelope{SubscriptionID: subID, Filters: filters}, nil

	case TagClose:
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: CLOSE wants 2 elements, got %d", ErrMalformed, len(parts))
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: subscription id is not a string", ErrMalformed)
		}
		return CloseEnvelope{SubscriptionID: subID}, nil

	case TagAuth:
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: AUTH wants 2 elements, got %d", ErrMalformed, len(parts))
		}
		ev := new(event.Event)
		if err := json.Unmarshal(parts[1], ev); err != nil {
			return nil, fmt.Errorf("%w: bad auth event: %v", ErrMalformed, err)
		}
		return AuthEnvelope{Event: ev}, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformed, tag)
	}
}

// MarshalOK builds ["OK", <event id>, <accepted>, <reason>].
func MarshalOK(eventID string, accepted bool, reason string) ([]byte, error) {
	return marshalArray(TagOK, eventID, accepted, reason)
}

// MarshalEvent builds ["EVENT", <sub id>, <event>].
func MarshalEvent(subID string, ev *event.Event) ([]byte, error) {
	return marshalArray(TagEvent, subID, ev)
}

// MarshalEOSE builds ["EOSE", <sub id>]: end of stored results.
func MarshalEOSE(subID string) ([]byte, error) {
	return marshalArray(TagEOSE, subID)
}

// MarshalClosed builds ["CLOSED", <sub id>, <reason>].
func MarshalClosed(subID, reason string) ([]byte, error) {
	return marshalArray(TagClosed, subID, reason)
}

// MarshalNotice builds ["NOTICE", <message>].
func MarshalNotice(message string) ([]byte, error) {
	return marshalArray(TagNotice, message)
}

// MarshalAuthChallenge builds ["AUTH", <challenge>].
func MarshalAuthChallenge(challenge string) ([]byte, error) {
	return marshalArray(TagAuth, challenge)
}

// marshalArray encodes a tagged array without HTML escaping, matching the
// canonical event serialization so ids survive a round trip.
func marshalArray(elems ...any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
