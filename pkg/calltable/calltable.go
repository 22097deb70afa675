// Package calltable implements a concurrent call-id → Inbound mapping,
// sharded the way a sharded key/value store is (fixed shard count,
// per-shard sync.RWMutex) but scaled down: a transport holds at most a few
// thousand live calls, so a small fixed shard count is enough to avoid a
// single point of lock contention on the hot get/put path.
package calltable

import (
	"sync"

	"github.com/rs/xid"
)

const shardCount = 16

// Table is a thread-safe map from call-id to a per-call handle V. It is
// deliberately generic: the transport core instantiates it over its Inbound
// interface, but the table itself has no notion of transports or calls.
type Table[V any] struct {
	shards [shardCount]shard[V]
	// snapshotID names this table instance for debug/introspection log
	// lines (e.g. "calltable snapshot 9m4e2mr0ui3e8a215n4g had 3 entries"),
	// grounded on sa6mwa-lockd's use of rs/xid for lightweight opaque
	// request/resource identifiers.
	snapshotID xid.ID
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[int32]V
}

// New returns an empty Table.
func New[V any]() *Table[V] {
	t := &Table[V]{snapshotID: xid.New()}
	for i := range t.shards {
		t.shards[i].m = make(map[int32]V)
	}
	return t
}

// SnapshotID returns the opaque identifier for this table instance, stable
// for its lifetime, used only for log correlation.
func (t *Table[V]) SnapshotID() string { return t.snapshotID.String() }

func (t *Table[V]) shardFor(id int32) *shard[V] {
	// call-ids are already well distributed (monotonic allocation or
	// peer-assigned); a cheap unsigned mod is enough.
	idx := uint32(id) % uint32(shardCount)
	return &t.shards[idx]
}

// Get returns the Inbound registered for id, if any.
func (t *Table[V]) Get(id int32) (V, bool) {
	s := t.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[id]
	return v, ok
}

// PutIfAbsent inserts v under id unless an entry already exists, returning
// the pre-existing value in that case. This resolves the race between two
// goroutines concurrently discovering the same fresh inbound call-id and
// both trying to create its Inbound.
func (t *Table[V]) PutIfAbsent(id int32, v V) (existing V, existed bool) {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[id]; ok {
		return cur, true
	}
	s.m[id] = v
	var zero V
	return zero, false
}

// Remove deletes id from the table, reporting whether it was present.
func (t *Table[V]) Remove(id int32) (removed V, ok bool) {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}
	return v, ok
}

// SnapshotAndClear empties the table shard by shard, holding each shard's
// lock while it is copied and cleared, and returns everything it held, for
// use by the lifecycle FSM's termination drain. The shards are not locked
// together, so an entry put into an already-cleared shard while the sweep
// is still running stays in the table.
func (t *Table[V]) SnapshotAndClear() []V {
	out := make([]V, 0)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, v := range s.m {
			out = append(out, v)
		}
		s.m = make(map[int32]V)
		s.mu.Unlock()
	}
	return out
}

// Snapshot returns every value currently in the table without clearing it,
// for fan-out notifications (e.g. waking every live call when the transmit
// window clears) that must not disturb the table itself.
func (t *Table[V]) Snapshot() []V {
	out := make([]V, 0)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for _, v := range s.m {
			out = append(out, v)
		}
		s.mu.RUnlock()
	}
	return out
}

// IsEmpty reports whether the table currently holds no entries. Used by the
// graceful-shutdown path to decide when to advance to ShutdownTerminated.
func (t *Table[V]) IsEmpty() bool { return t.Len() == 0 }

// Len returns the current number of entries, for metrics/tests.
func (t *Table[V]) Len() int {
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}
