package orchestrator

import (
	"sync"
	"time"

	"github.com/orderflow/backbone/common/events"
)

// Snapshot is the frozen OrderPlaced state a saga needs to finish, regardless
// of which terminal event arrives.
type Snapshot struct {
	OrderID       string
	UserID        string
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	PhoneNumber   string
	TotalAmount   float64
	Items         []events.OrderLineItem
	CorrelationID string
}

type entry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// SnapshotStore is the process-local, bounded-TTL saga state. A snapshot's
// removal doubles as the single-consume idempotence token: once Consume has
// returned a snapshot for an orderId, every later call for that orderId
// reports absent.
type SnapshotStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

// NewSnapshotStore builds a store whose entries expire after ttl.
func NewSnapshotStore(ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{entries: map[string]entry{}, ttl: ttl}
}

// Put stores snap under its OrderID, replacing any earlier entry.
func (s *SnapshotStore) Put(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.OrderID] = entry{snapshot: snap, expiresAt: time.Now().Add(s.ttl)}
}

// Consume atomically fetches and deletes the snapshot for orderID. The
// second bool reports whether one was present and unexpired.
func (s *SnapshotStore) Consume(orderID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[orderID]
	if !ok {
		return Snapshot{}, false
	}
	delete(s.entries, orderID)

	if time.Now().After(e.expiresAt) {
		return Snapshot{}, false
	}
	return e.snapshot, true
}

// Sweep deletes expired entries; callers run it on a ticker. Returns the
// number of entries removed.
func (s *SnapshotStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live (not necessarily unexpired) entries.
func (s *SnapshotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
