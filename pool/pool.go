package pool

import (
	"fmt"
	"sync"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

// Pool spawns replica handles from a Registry. Sequence numbers start
// at 1 and only grow within one Pool, so a handle ID is never reused
// while the pool lives, even after the handle is released.
type Pool struct {
	registry *Registry

	mu     sync.Mutex
	seq    map[string]uint32
	live   map[string]struct{}
	closed bool
}

// New creates a pool over registry.
func New(registry *Registry) *Pool {
	return &Pool{
		registry: registry,
		seq:      make(map[string]uint32),
		live:     make(map[string]struct{}),
	}
}

// Spawn creates count handles from the template registered under
// templateID. Every handle carries its own copy of the template.
func (p *Pool) Spawn(templateID string, count int) ([]types.ReplicaHandle, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", resonance.ErrInvalidReplicaCount, count)
	}
	tmpl, err := p.registry.Lookup(templateID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, resonance.ErrPoolClosed
	}

	first := p.seq[templateID] + 1
	p.seq[templateID] += uint32(count)

	handles := make([]types.ReplicaHandle, count)
	for i := range handles {
		seq := first + uint32(i)
		h := types.ReplicaHandle{
			ID:       ReplicaID(templateID, seq),
			ParentID: templateID,
			Sequence: seq,
			Profile:  tmpl.Clone(),
		}
		p.live[h.ID] = struct{}{}
		handles[i] = h
	}
	return handles, nil
}

// ReplicaID derives a replica identity from its template and sequence.
func ReplicaID(templateID string, seq uint32) string {
	return fmt.Sprintf("%s-%03d", templateID, seq)
}

// Release returns handles to the pool. Releasing an unknown or already
// released handle is a no-op.
func (p *Pool) Release(handles ...types.ReplicaHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range handles {
		delete(p.live, h.ID)
	}
}

// Live returns the number of spawned, unreleased handles.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Close tears down the pool. Subsequent spawns fail with
// resonance.ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	clear(p.live)
	return nil
}
