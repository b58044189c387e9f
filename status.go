package stationboard

import (
	"errors"
	"fmt"

	"github.com/jpalmerr/stationboard/internal/realtime"
)

// Status represents the state of a station.
//
// Status is a string type that can hold one of two predefined values:
// [StatusActive] or [StatusInactive]. The values match the wire format
// exactly, including casing; any other value is invalid.
type Status string

const (
	// StatusActive indicates the station is reported active by the backend.
	StatusActive Status = realtime.StatusActive

	// StatusInactive indicates the station is inactive. Every configured
	// station starts in this state until its first event arrives.
	StatusInactive Status = realtime.StatusInactive
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is [StatusActive] or [StatusInactive].
func (s Status) Valid() bool {
	return realtime.ValidStatus(string(s))
}

// ParseStatus converts a wire value to a [Status].
//
// Only the exact strings "ACTIVE" and "INACTIVE" are accepted.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q (expected %s or %s)", s, StatusActive, StatusInactive)
	}
	return status, nil
}

// StatusEvent is a single accepted status change for a station.
//
// StatusEvent is passed to callbacks registered with [WithStatusCallback]
// after the store has been updated. It is not retained by StationBoard.
type StatusEvent struct {
	// StationID identifies the station. It may be an id outside the
	// configured station set; such ids are tracked like any other.
	StationID string

	// Status is the station's new status.
	Status Status

	// Source is "realtime" for events received on the channel and
	// "inject" for events submitted through [StationBoard.Inject].
	Source string
}

// ConnectionState is the lifecycle state of the realtime connection.
type ConnectionState = realtime.State

// Connection states, in lifecycle order. StateClosed is terminal.
const (
	StateIdle         = realtime.StateIdle
	StateConnecting   = realtime.StateConnecting
	StateSubscribing  = realtime.StateSubscribing
	StateSubscribed   = realtime.StateSubscribed
	StateReconnecting = realtime.StateReconnecting
	StateClosed       = realtime.StateClosed
)

// ConfigurationError reports a missing or invalid connection setting
// (socket URL, host or token). It is returned by [New] before any
// connection is attempted.
type ConfigurationError = realtime.ConfigurationError

// ErrClosed is returned by [StationBoard.Inject] after teardown has begun.
var ErrClosed = errors.New("stationboard: closed")

// ErrInvalidEvent is wrapped by errors from [StationBoard.Inject] when the
// station id or status would not be accepted from live traffic either.
var ErrInvalidEvent = realtime.ErrNormalization
