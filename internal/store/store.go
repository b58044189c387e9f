package store

// StatusUpdate is a single station status change as seen by the store.
//
// StatusUpdate is the storage representation of a status event, shaped for
// JSON serialization (used by the SSE stream). It is decoupled from the
// realtime package's types to allow independent evolution.
type StatusUpdate struct {
	// StationID identifies the station.
	StationID string `json:"stationId"`

	// Status is "ACTIVE" or "INACTIVE". The store does not validate it;
	// callers only apply normalized events.
	Status string `json:"status"`
}

// Store defines the interface for holding and subscribing to station statuses.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Apply overwrites the status for update.StationID and notifies all
	// subscribers. Unknown station ids are inserted. Returns false if the
	// store has been closed and the update was ignored.
	Apply(update StatusUpdate) bool

	// Snapshot returns a copy of the full station -> status mapping.
	Snapshot() map[string]string

	// Subscribe returns a channel that receives status updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan StatusUpdate

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan StatusUpdate)
}
