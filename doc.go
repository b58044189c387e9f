// Package stationboard keeps a live dashboard of station statuses in sync
// with a realtime event channel.
//
// Each station is either [StatusActive] or [StatusInactive]. StationBoard
// opens one authenticated WebSocket connection, subscribes to the status
// channel, normalizes every received envelope into a canonical
// [StatusEvent] and applies it to an in-memory store with last-write-wins
// semantics. The store is served as an embeddable dashboard.
//
// # Quick Start
//
//	sb, err := stationboard.New(
//	    stationboard.WithSocketURL("wss://example.appsync-realtime-api.eu-west-1.amazonaws.com/event/realtime"),
//	    stationboard.WithAuth("example.appsync-api.eu-west-1.amazonaws.com", os.Getenv("STATIONBOARD_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err) // *stationboard.ConfigurationError for a missing host or token
//	}
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sb.Start(ctx) // blocks until context is cancelled
//
// # Envelopes
//
// Status events arrive in any of three envelopes, all treated identically:
//
//	{"stationId":"2","status":"ACTIVE"}
//	{"event":{"stationId":"2","status":"ACTIVE"}}
//	{"event":"{\"stationId\":\"2\",\"status\":\"ACTIVE\"}"}
//
// Anything else (acknowledgements, keep-alives, unknown status values) is
// dropped without affecting the store.
//
// # Test injection
//
// [StationBoard.Inject] applies an event through the same path as live
// traffic. The dashboard exposes it as a test controls form.
//
// # Architecture
//
// StationBoard consists of several internal packages (under internal/):
//
//   - internal/realtime: Connection, subscribe handshake and envelope normalization
//   - internal/store: In-memory status store with pub/sub for real-time updates
//   - internal/server: HTTP server with REST API, Server-Sent Events and test injection
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package stationboard
