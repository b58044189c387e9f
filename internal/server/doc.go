// Package server provides the HTTP server for the StationBoard dashboard and API.
//
// This package is internal to StationBoard and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: JSON endpoints at "/api/status" (station snapshot) and
//     "/api/connection" (realtime connection state)
//   - Server-Sent Events: Real-time updates at "/api/sse"
//   - Test controls: Rate-limited manual status injection at "/api/inject"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the stationboard library should not need to interact with this
// package directly. The server is started automatically by [stationboard.StationBoard.Start].
package server
