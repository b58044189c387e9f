package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical status values. Any other value is rejected by [Normalize].
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Event is the canonical station status update produced by [Normalize].
type Event struct {
	StationID string `json:"stationId"`
	Status    string `json:"status"`
}

// Shape identifies which envelope a frame arrived in.
type Shape int

const (
	// ShapeUnrecognized covers everything that is not a status envelope:
	// subscribe acknowledgements, keep-alives, malformed frames.
	ShapeUnrecognized Shape = iota

	// ShapeBare is a bare {"stationId":..,"status":..} object.
	ShapeBare

	// ShapeWrappedEvent is {"event":{"stationId":..,"status":..}}.
	ShapeWrappedEvent

	// ShapeEncodedEvent is {"event":"{\"stationId\":..,\"status\":..}"},
	// the form data frames take on the event channel.
	ShapeEncodedEvent
)

func (s Shape) String() string {
	switch s {
	case ShapeBare:
		return "bare"
	case ShapeWrappedEvent:
		return "wrapped"
	case ShapeEncodedEvent:
		return "encoded"
	default:
		return "unrecognized"
	}
}

// ValidStatus reports whether s is one of the two canonical status values.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusInactive
}

// object is a decoded JSON object with its members left undecoded.
type object map[string]json.RawMessage

// Normalize resolves a raw frame into at most one [Event].
//
// Resolution order:
//  1. a frame that is a JSON string literal is unquoted and decoded again
//  2. an "event" member holding a JSON string is decoded as the inner object;
//     an "event" member holding an object is used directly
//  3. an object carrying "stationId" is the event body
//  4. anything else is [ShapeUnrecognized]
//
// The body must carry a non-empty string stationId and a status of exactly
// "ACTIVE" or "INACTIVE". Every failure returns an error wrapping
// [ErrNormalization]; Normalize never panics on malformed input.
func Normalize(payload []byte) (Event, Shape, error) {
	outer, err := decodeObject(payload)
	if err != nil {
		return Event{}, ShapeUnrecognized, err
	}

	shape, body := classify(outer)
	if shape == ShapeUnrecognized {
		return Event{}, shape, fmt.Errorf("%w: no station envelope", ErrNormalization)
	}

	ev, err := body.event()
	if err != nil {
		return Event{}, shape, err
	}
	return ev, shape, nil
}

// decodeObject parses payload as a JSON object, unwrapping one level of
// string encoding first.
func decodeObject(payload []byte) (object, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '"' {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("%w: invalid json: %v", ErrNormalization, err)
		}
		payload = bytes.TrimSpace([]byte(s))
	}

	var obj object
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrNormalization, err)
	}
	if obj == nil {
		// a literal null decodes without error
		return nil, fmt.Errorf("%w: empty payload", ErrNormalization)
	}
	return obj, nil
}

// classify picks the envelope variant. The "event" member takes precedence
// over a bare body on the outer object.
func classify(outer object) (Shape, object) {
	if raw, ok := outer["event"]; ok {
		if inner, shape, ok := decodeEventMember(raw); ok && inner.has("stationId") {
			return shape, inner
		}
	}
	if outer.has("stationId") {
		return ShapeBare, outer
	}
	return ShapeUnrecognized, nil
}

// decodeEventMember decodes the value of an "event" member, which is either
// an object or a string holding an encoded object.
func decodeEventMember(raw json.RawMessage) (object, Shape, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ShapeUnrecognized, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, ShapeUnrecognized, false
		}
		var inner object
		if err := json.Unmarshal([]byte(s), &inner); err != nil || inner == nil {
			return nil, ShapeUnrecognized, false
		}
		return inner, ShapeEncodedEvent, true
	case '{':
		var inner object
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, ShapeUnrecognized, false
		}
		return inner, ShapeWrappedEvent, true
	default:
		return nil, ShapeUnrecognized, false
	}
}

func (o object) has(key string) bool {
	raw, ok := o[key]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// event validates the body and converts it to an [Event].
func (o object) event() (Event, error) {
	id, err := o.str("stationId")
	if err != nil {
		return Event{}, err
	}
	if id == "" {
		return Event{}, fmt.Errorf("%w: stationId is empty", ErrNormalization)
	}

	status, err := o.str("status")
	if err != nil {
		return Event{}, err
	}
	if !ValidStatus(status) {
		return Event{}, fmt.Errorf("%w: unsupported status %q for station %q", ErrNormalization, status, id)
	}

	return Event{StationID: id, Status: status}, nil
}

func (o object) str(key string) (string, error) {
	if !o.has(key) {
		return "", fmt.Errorf("%w: %s is missing", ErrNormalization, key)
	}
	var s string
	if err := json.Unmarshal(o[key], &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrNormalization, key)
	}
	return s, nil
}
