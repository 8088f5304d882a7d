package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_PutConsume_RoundTrips(t *testing.T) {
	s := NewSnapshotStore(time.Minute)
	s.Put(Snapshot{OrderID: "order-1", UserID: "user-1"})

	snap, ok := s.Consume("order-1")
	require.True(t, ok)
	assert.Equal(t, "user-1", snap.UserID)
}

func TestSnapshotStore_Consume_IsSingleUse(t *testing.T) {
	s := NewSnapshotStore(time.Minute)
	s.Put(Snapshot{OrderID: "order-1"})

	_, ok := s.Consume("order-1")
	require.True(t, ok)

	_, ok = s.Consume("order-1")
	assert.False(t, ok, "second consume of the same orderId must report absent")
}

func TestSnapshotStore_Consume_UnknownOrderID_ReportsAbsent(t *testing.T) {
	s := NewSnapshotStore(time.Minute)
	_, ok := s.Consume("never-placed")
	assert.False(t, ok)
}

func TestSnapshotStore_Consume_Expired_ReportsAbsent(t *testing.T) {
	s := NewSnapshotStore(-time.Second)
	s.Put(Snapshot{OrderID: "order-1"})

	_, ok := s.Consume("order-1")
	assert.False(t, ok)
}

func TestSnapshotStore_Sweep_RemovesOnlyExpired(t *testing.T) {
	s := NewSnapshotStore(time.Minute)
	s.Put(Snapshot{OrderID: "fresh"})

	s.mu.Lock()
	s.entries["stale"] = entry{snapshot: Snapshot{OrderID: "stale"}, expiresAt: time.Now().Add(-time.Second)}
	s.mu.Unlock()

	removed := s.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Consume("fresh")
	assert.True(t, ok)
}
