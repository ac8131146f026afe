// Package accumulator provides a sharded, per-shard-locked map from document
// id to a running value. It lets many goroutines add relevance contributions
// for different documents while only contending with writers that land in
// the same shard.
package accumulator

import "sync"

// DefaultShards is the shard count used when New is given a non-positive
// count.
const DefaultShards = 64

type shard[V any] struct {
	mu    sync.Mutex
	slots map[int]V
}

// Sharded maps non-negative document ids to values of type V. The shard of
// an id is id mod the shard count.
type Sharded[V any] struct {
	shards []shard[V]
}

func New[V any](shards int) *Sharded[V] {
	if shards <= 0 {
		shards = DefaultShards
	}
	s := &Sharded[V]{shards: make([]shard[V], shards)}
	for i := range s.shards {
		s.shards[i].slots = make(map[int]V)
	}
	return s
}

func (s *Sharded[V]) shardFor(id int) *shard[V] {
	return &s.shards[uint(id)%uint(len(s.shards))]
}

// Do locks the shard owning id, creates the slot with the zero value if it
// is absent and hands fn a pointer to it. The lock is released when fn
// returns, panics included. fn must not retain the pointer or call back into
// the same Sharded.
func (s *Sharded[V]) Do(id int, fn func(slot *V)) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v := sh.slots[id]
	defer func() { sh.slots[id] = v }()
	fn(&v)
}

// Erase removes the slot of id under the same shard lock that Do uses.
func (s *Sharded[V]) Erase(id int) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.slots, id)
}

// Flatten merges every shard into a plain map. Shards are locked one at a
// time, so the result is a per-shard rather than a global snapshot.
func (s *Sharded[V]) Flatten() map[int]V {
	out := make(map[int]V)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, v := range sh.slots {
			out[id] = v
		}
		sh.mu.Unlock()
	}
	return out
}

// Len counts slots across all shards.
func (s *Sharded[V]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.slots)
		sh.mu.Unlock()
	}
	return n
}

// Shards returns the configured shard count.
func (s *Sharded[V]) Shards() int {
	return len(s.shards)
}
