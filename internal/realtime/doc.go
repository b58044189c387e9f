// Package realtime implements the station status synchronization client.
//
// This package is internal to StationBoard and owns everything that touches
// the backend event channel:
//
//   - [EncodeAuthSubprotocol]: builds the "header-..." subprotocol token that
//     carries the host and bearer credential during the WebSocket handshake
//   - [Client]: dials the endpoint, sends the subscribe frame, forwards raw
//     frames and reconnects with exponential backoff
//   - [Normalize]: resolves a raw frame into at most one [Event]
//
// The client never interprets frames itself. Every inbound frame is handed
// to the caller verbatim via [Client.Frames]; callers run [Normalize] and
// apply the result to their store.
//
// Users of the stationboard library should not need to interact with this
// package directly. Configuration is done through the main stationboard package.
package realtime
