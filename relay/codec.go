// Package relay implements spec.md's C9 (message codec) and C10
// (per-relay WebSocket connection actor).
//
// The codec is grounded on other_examples/8a0ea02a_rdoiron-roostr's
// typed-struct parsing style and wired to github.com/tidwall/gjson for
// the read-path frame-type sniff (gjson.ParseBytes(...).Array()) before
// committing to a typed decode, per SPEC_FULL.md's domain stack.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/girino/nostrkit/event"
)

var (
	ErrInvalidMessageFormat = errors.New("relay: invalid message format")
	ErrSerializationFailed  = errors.New("relay: serialization failed")
)

// ClientMessage is any frame this library can send to a relay (spec.md
// §4.7): EVENT, REQ, CLOSE, AUTH.
type ClientMessage interface {
	clientMessage()
}

// EventMsg publishes an event to the relay: ["EVENT", <event>].
type EventMsg struct{ Event *event.Event }

// ReqMsg opens or refreshes a subscription: ["REQ", sub_id, filter, ...].
type ReqMsg struct {
	SubID   string
	Filters []event.Filter
}

// CloseMsg ends a subscription: ["CLOSE", sub_id].
type CloseMsg struct{ SubID string }

// AuthMsg responds to a NIP-42 challenge: ["AUTH", <event>].
type AuthMsg struct{ Event *event.Event }

func (EventMsg) clientMessage() {}
func (ReqMsg) clientMessage()   {}
func (CloseMsg) clientMessage() {}
func (AuthMsg) clientMessage()  {}

// EncodeClientMessage renders msg as the minified JSON array the relay
// expects.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var arr []interface{}
	switch m := msg.(type) {
	case EventMsg:
		arr = []interface{}{"EVENT", m.Event}
	case ReqMsg:
		arr = make([]interface{}, 0, 2+len(m.Filters))
		arr = append(arr, "REQ", m.SubID)
		for _, f := range m.Filters {
			arr = append(arr, f)
		}
	case CloseMsg:
		arr = []interface{}{"CLOSE", m.SubID}
	case AuthMsg:
		arr = []interface{}{"AUTH", m.Event}
	default:
		return nil, fmt.Errorf("%w: unknown client message type %T", ErrSerializationFailed, msg)
	}
	b, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return b, nil
}

// ServerMessage is any frame a relay can send (spec.md §4.7).
type ServerMessage interface {
	serverMessage()
}

// EventReceived carries an event delivered for a subscription:
// ["EVENT", sub_id, event].
type EventReceived struct {
	SubID string
	Event *event.Event
}

// Eose signals the end of stored events for a subscription:
// ["EOSE", sub_id].
type Eose struct{ SubID string }

// Notice is a free-form relay message: ["NOTICE", msg].
type Notice struct{ Message string }

// Ok is the relay's verdict on a published event: ["OK", event_id,
// accepted, msg].
type Ok struct {
	EventID  string
	Accepted bool
	Message  string
}

// AuthChallenge carries a NIP-42 challenge string: ["AUTH", challenge].
type AuthChallenge struct{ Challenge string }

// Closed reports a relay-initiated subscription close:
// ["CLOSED", sub_id, msg].
type Closed struct {
	SubID   string
	Message string
}

// Unknown is any frame whose first element isn't a recognized type.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (EventReceived) serverMessage() {}
func (Eose) serverMessage()          {}
func (Notice) serverMessage()        {}
func (Ok) serverMessage()            {}
func (AuthChallenge) serverMessage() {}
func (Closed) serverMessage()        {}
func (Unknown) serverMessage()       {}

// ParseServerMessage sniffs data's first array element to decide which
// typed frame to decode into, per spec.md §4.7. Parse errors on a
// recognized prefix are ErrInvalidMessageFormat; anything else decodes
// to Unknown rather than erroring.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: not a JSON array", ErrInvalidMessageFormat)
	}
	elems := parsed.Array()
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrInvalidMessageFormat)
	}
	msgType := elems[0].String()

	switch msgType {
	case "EVENT":
		if len(elems) != 3 {
			return nil, fmt.Errorf("%w: EVENT requires 3 elements, got %d", ErrInvalidMessageFormat, len(elems))
		}
		var e event.Event
		if err := e.UnmarshalJSON([]byte(elems[2].Raw)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessageFormat, err)
		}
		return EventReceived{SubID: elems[1].String(), Event: &e}, nil
	case "EOSE":
		if len(elems) != 2 {
			return nil, fmt.Errorf("%w: EOSE requires 2 elements, got %d", ErrInvalidMessageFormat, len(elems))
		}
		return Eose{SubID: elems[1].String()}, nil
	case "NOTICE":
		if len(elems) != 2 {
			return nil, fmt.Errorf("%w: NOTICE requires 2 elements, got %d", ErrInvalidMessageFormat, len(elems))
		}
		return Notice{Message: elems[1].String()}, nil
	case "OK":
		if len(elems) != 4 {
			return nil, fmt.Errorf("%w: OK requires exactly 4 elements, got %d", ErrInvalidMessageFormat, len(elems))
		}
		return Ok{EventID: elems[1].String(), Accepted: elems[2].Bool(), Message: elems[3].String()}, nil
	case "AUTH":
		if len(elems) != 2 {
			return nil, fmt.Errorf("%w: AUTH requires 2 elements, got %d", ErrInvalidMessageFormat, len(elems))
		}
		return AuthChallenge{Challenge: elems[1].String()}, nil
	case "CLOSED":
		if len(elems) != 3 {
			return nil, fmt.Errorf("%w: CLOSED requires 3 elements, got %d", ErrInvalidMessageFormat, len(elems))
		}
		return Closed{SubID: elems[1].String(), Message: elems[2].String()}, nil
	default:
		return Unknown{Type: msgType, Raw: json.RawMessage(data)}, nil
	}
}
