// Package registry tracks the live state of pads that currently have
// connections attached. Each pad gets its own serialization point (a
// per-pad mutex ordering mutations against each other) so edits to
// different pads never contend; there is no global lock across pads.
//
// Pads are distributed across shards by murmur3 hash of the pad id so that
// attach/detach churn on one pad does not contend with lookups of another.
package registry

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of registry shards.
const DefaultShardCount = 16

// PadState is the live state of one attached pad.
type PadState struct {
	padID string

	// mu serializes mutations of this pad's objects. Read-modify-write on
	// a single object happens under it, which is what makes concurrent
	// same-object edits last-write-wins rather than interleaved.
	mu sync.Mutex

	refs int
}

// Lock acquires the pad's mutation lock.
func (p *PadState) Lock() {
	p.mu.Lock()
}

// Unlock releases the pad's mutation lock.
func (p *PadState) Unlock() {
	p.mu.Unlock()
}

// PadID returns the pad this state belongs to.
func (p *PadState) PadID() string {
	return p.padID
}

// Registry is the sharded map of live pad states.
type Registry struct {
	shards     []*shard
	shardCount uint32
}

type shard struct {
	mu   sync.Mutex
	pads map[string]*PadState
}

// NewRegistry creates a registry with the given number of shards.
// shardCount <= 0 selects DefaultShardCount.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	r := &Registry{
		shards:     make([]*shard, shardCount),
		shardCount: uint32(shardCount),
	}
	for i := range r.shards {
		r.shards[i] = &shard{pads: make(map[string]*PadState)}
	}
	return r
}

func (r *Registry) shardFor(padID string) *shard {
	return r.shards[murmur3.Sum32([]byte(padID))%r.shardCount]
}

// Acquire returns the live state for a pad, creating it on first attach,
// and increments its reference count.
func (r *Registry) Acquire(padID string) *PadState {
	sh := r.shardFor(padID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.pads[padID]
	if !ok {
		state = &PadState{padID: padID}
		sh.pads[padID] = state
	}
	state.refs++
	return state
}

// Release drops one reference to a pad's live state, removing the state
// when the last connection detaches.
func (r *Registry) Release(padID string) {
	sh := r.shardFor(padID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.pads[padID]
	if !ok {
		return
	}
	state.refs--
	if state.refs <= 0 {
		delete(sh.pads, padID)
	}
}

// Get returns the live state for a pad without acquiring a reference, or
// nil when no connection is attached.
func (r *Registry) Get(padID string) *PadState {
	sh := r.shardFor(padID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.pads[padID]
}

// Live returns the number of pads with at least one attached connection.
func (r *Registry) Live() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		total += len(sh.pads)
		sh.mu.Unlock()
	}
	return total
}
