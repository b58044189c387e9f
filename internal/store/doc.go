// Package store holds the live station status mapping.
//
// This package is internal to StationBoard. It keeps the station id ->
// status mapping that the realtime client and the manual test injector
// write to, and implements a publish-subscribe pattern for real-time
// updates to connected dashboard clients.
//
// The main components are:
//
//   - [Store]: Interface defining apply, snapshot and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [StatusUpdate]: Storage representation of one station status change
//
// The store is designed for concurrent access with proper synchronization.
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
