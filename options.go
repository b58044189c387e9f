package stationboard

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// sbConfig holds mutable state during StationBoard construction.
type sbConfig struct {
	title            string
	stations         []Station
	socketURL        string
	host             string
	token            string
	channel          string
	port             int
	reconnect        ReconnectPolicy
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	injectLimit      rate.Limit
	injectBurst      int
	logger           *slog.Logger
	statusCallbacks  []func(StatusEvent)
	stateCallbacks   []func(from, to ConnectionState)
}

// Option is a function that configures a [StationBoard] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Connection options: [WithSocketURL], [WithAuth], [WithChannel],
// [WithReconnectPolicy], [WithoutReconnect], [WithHandshakeTimeout],
// [WithReadTimeout].
// Dashboard options: [WithStation], [WithStations], [WithPort], [WithTitle],
// [WithInjectRateLimit].
type Option func(*sbConfig) error

// WithStation adds a single [Station] to the known station set.
//
// Can be called multiple times. When no station is configured,
// [DefaultStations] is used.
//
// Example:
//
//	sb, err := stationboard.New(
//	    stationboard.WithStation(stationboard.Station{ID: "1", Name: "Main Station"}),
//	    stationboard.WithStation(stationboard.Station{ID: "2", Name: "Secondary Station"}),
//	)
func WithStation(s Station) Option {
	return func(cfg *sbConfig) error {
		cfg.stations = append(cfg.stations, s)
		return nil
	}
}

// WithStations adds multiple [Station] values to the known station set.
//
// Equivalent to calling [WithStation] for each value.
func WithStations(stations ...Station) Option {
	return func(cfg *sbConfig) error {
		cfg.stations = append(cfg.stations, stations...)
		return nil
	}
}

// WithSocketURL sets the ws:// or wss:// realtime endpoint.
//
// The URL is required; [New] returns a [ConfigurationError] if it is
// missing or uses another scheme.
func WithSocketURL(url string) Option {
	return func(cfg *sbConfig) error {
		cfg.socketURL = strings.TrimSpace(url)
		return nil
	}
}

// WithAuth sets the API host and bearer token sent in the handshake and
// the subscribe request.
//
// Both values are required. Missing values are reported by [New] as a
// [ConfigurationError] naming the field, before any connection attempt.
// The token is never logged verbatim.
//
// Example:
//
//	sb, err := stationboard.New(
//	    stationboard.WithSocketURL("wss://example.appsync-realtime-api.eu-west-1.amazonaws.com/event/realtime"),
//	    stationboard.WithAuth("example.appsync-api.eu-west-1.amazonaws.com", os.Getenv("STATIONBOARD_TOKEN")),
//	)
func WithAuth(host, token string) Option {
	return func(cfg *sbConfig) error {
		cfg.host = host
		cfg.token = token
		return nil
	}
}

// WithChannel sets the status channel name. Defaults to "stations/status".
//
// Returns an error if the channel is empty.
func WithChannel(channel string) Option {
	return func(cfg *sbConfig) error {
		if strings.TrimSpace(channel) == "" {
			return errors.New("channel cannot be empty")
		}
		cfg.channel = channel
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *sbConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithReconnectPolicy replaces the default reconnect policy.
//
// By default a lost connection is retried with exponential backoff (1s
// doubling up to 30s, unlimited attempts) and the channel is subscribed
// again. Zero durations in p fall back to those defaults. The policy is
// always enabled; use [WithoutReconnect] to turn reconnection off.
//
// Returns an error if any duration or MaxAttempts is negative.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(cfg *sbConfig) error {
		if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
			return errors.New("reconnect backoff cannot be negative")
		}
		if p.MaxAttempts < 0 {
			return errors.New("reconnect max attempts cannot be negative")
		}
		p.Enabled = true
		cfg.reconnect = p
		return nil
	}
}

// WithoutReconnect disables reconnection. Any transport error moves the
// connection straight to [StateClosed] and the statuses stop updating
// except through [StationBoard.Inject].
func WithoutReconnect() Option {
	return func(cfg *sbConfig) error {
		cfg.reconnect = ReconnectPolicy{}
		return nil
	}
}

// WithHandshakeTimeout bounds each connection attempt. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("handshake timeout must be positive")
		}
		cfg.handshakeTimeout = d
		return nil
	}
}

// WithReadTimeout sets how long a subscribed connection may go without
// receiving any frame before it is treated as lost and the reconnect
// policy applies. Keep-alive frames count. Defaults to 5 minutes.
//
// Returns an error if the duration is zero or negative.
func WithReadTimeout(d time.Duration) Option {
	return func(cfg *sbConfig) error {
		if d <= 0 {
			return errors.New("read timeout must be positive")
		}
		cfg.readTimeout = d
		return nil
	}
}

// WithInjectRateLimit limits how often the dashboard's test controls may
// inject events through POST /api/inject. Defaults to 5 per second with a
// burst of 10. Use [rate.Inf] to disable limiting.
//
// Returns an error if burst is less than 1.
func WithInjectRateLimit(limit rate.Limit, burst int) Option {
	return func(cfg *sbConfig) error {
		if burst < 1 {
			return errors.New("inject burst must be at least 1")
		}
		cfg.injectLimit = limit
		cfg.injectBurst = burst
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the StationBoard instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *sbConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers a function to be called for every accepted
// status event, after the store has been updated.
//
// Events from the realtime channel are delivered from a single goroutine in
// arrival order. Events from [StationBoard.Inject] are delivered on the
// caller's goroutine.
//
// IMPORTANT: Callbacks must be non-blocking. Blocking callbacks delay the
// processing of subsequent frames.
//
// Panics within callbacks are recovered and logged. Nil callbacks are
// silently ignored.
//
// Example:
//
//	sb, err := stationboard.New(
//	    stationboard.WithStatusCallback(func(ev stationboard.StatusEvent) {
//	        if ev.Status == stationboard.StatusInactive {
//	            log.Printf("station %s went inactive", ev.StationID)
//	        }
//	    }),
//	)
func WithStatusCallback(cb func(StatusEvent)) Option {
	return func(cfg *sbConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}

// WithStateCallback registers a function to be called on every connection
// state transition. Callbacks run sequentially and must not block or call
// [StationBoard.Close].
//
// Nil callbacks are silently ignored.
func WithStateCallback(cb func(from, to ConnectionState)) Option {
	return func(cfg *sbConfig) error {
		if cb == nil {
			return nil
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "StationBoard".
func WithTitle(title string) Option {
	return func(cfg *sbConfig) error {
		cfg.title = title
		return nil
	}
}
