package store

import (
	"sync"
)

// Inactive is the status every known station starts with.
const Inactive = "INACTIVE"

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore maps station ids to statuses, with new updates replacing
// previous values unconditionally (last write wins). It is created with the
// known station set at [Inactive]; ids that arrive in updates but are not in
// that set are inserted as ordinary keys.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]string
	closed   bool

	subscribers map[chan StatusUpdate]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a [MemoryStore] holding knownIDs, all [Inactive].
func NewMemoryStore(knownIDs []string) *MemoryStore {
	m := &MemoryStore{
		subscribers: make(map[chan StatusUpdate]struct{}),
	}
	m.Reset(knownIDs)
	return m
}

// Reset replaces the mapping with knownIDs, all [Inactive].
//
// Subscribers are not notified; Reset is meant for construction and tests.
func (m *MemoryStore) Reset(knownIDs []string) {
	statuses := make(map[string]string, len(knownIDs))
	for _, id := range knownIDs {
		statuses[id] = Inactive
	}

	m.mu.Lock()
	m.statuses = statuses
	m.mu.Unlock()
}

// Apply stores update and notifies all subscribers. Concurrent Apply calls
// reach subscribers in the same order they reach the mapping.
//
// Apply never fails on an open store. After [MemoryStore.Close] it leaves
// the mapping untouched and returns false.
func (m *MemoryStore) Apply(update StatusUpdate) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	defer m.mu.Unlock()

	m.statuses[update.StationID] = update.Status
	// fan out under mu so subscribers see updates in store order
	m.notifySubscribers(update)
	return true
}

// Snapshot returns a copy of the current mapping.
//
// Modifying the returned map does not affect the store.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]string, len(m.statuses))
	for id, status := range m.statuses {
		snapshot[id] = status
	}
	return snapshot
}

// Close freezes the store. Subsequent Apply calls are no-ops, Snapshot
// keeps returning the last state. Safe to call multiple times.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan StatusUpdate {
	ch := make(chan StatusUpdate, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan StatusUpdate) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the update to all active subscribers without
// blocking; a full subscriber buffer drops the message for that subscriber.
func (m *MemoryStore) notifySubscribers(update StatusUpdate) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- update:
		default:
			// subscriber is slow, drop the message
		}
	}
}
