package realtime

import (
	"errors"
	"fmt"
)

// ErrNormalization is wrapped by every error returned from [Normalize].
// Frames that fail normalization are dropped by callers, never surfaced.
var ErrNormalization = errors.New("not a station status event")

// ConfigurationError reports a missing or malformed connection setting.
//
// It is returned before any network activity takes place, so a client is
// never dialled with a malformed credential.
type ConfigurationError struct {
	// Field names the offending setting (e.g. "host", "token", "url").
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// TransportError wraps a socket-level failure after a connection attempt.
//
// Transport errors are logged by the [Client] and trigger a reconnect (or a
// transition to [StateClosed]); they are never returned to library callers.
type TransportError struct {
	// Op is the operation that failed: "dial", "subscribe" or "read".
	Op string

	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
