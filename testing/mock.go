// Package resonancetest provides test utilities for resonance engine
// integrators, including a configurable mock producer, a test harness,
// and a compliance suite for decision producers.
package resonancetest

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

// Compile-time check that MockProducer satisfies Producer.
var _ resonance.Producer = (*MockProducer)(nil)

// MockProducer is a configurable decision producer. With no ProduceFn
// it answers every replica with Decision, Explanation and Confidence,
// echoing the replica identity it was asked for.
//
// A MockProducer is safe for concurrent use.
type MockProducer struct {
	Decision    string
	Explanation string
	Confidence  float64

	// ProduceFn, if set, replaces the default answer.
	ProduceFn func(context.Context, types.ProduceRequest) (types.Production, error)

	// ProduceCalls counts Produce invocations.
	ProduceCalls atomic.Int64

	mu   sync.Mutex
	seen []string
}

// NewMockProducer returns a mock that answers decision/explanation
// with full confidence.
func NewMockProducer(decision, explanation string) *MockProducer {
	return &MockProducer{Decision: decision, Explanation: explanation, Confidence: 1}
}

func (m *MockProducer) Produce(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
	m.ProduceCalls.Add(1)
	m.mu.Lock()
	m.seen = append(m.seen, req.Replica.ID)
	m.mu.Unlock()

	if m.ProduceFn != nil {
		return m.ProduceFn(ctx, req)
	}
	return types.Production{
		ReplicaID:   req.Replica.ID,
		Decision:    m.Decision,
		Explanation: m.Explanation,
		Confidence:  m.Confidence,
	}, nil
}

// Seen returns the replica IDs the mock was asked for, sorted.
func (m *MockProducer) Seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.seen)
	slices.Sort(out)
	return out
}

// Answer returns a ProduceFn that echoes the replica identity and
// answers with the output chosen by pick for that replica.
func Answer(pick func(replicaID string) (decision, explanation string)) func(context.Context, types.ProduceRequest) (types.Production, error) {
	return func(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
		decision, explanation := pick(req.Replica.ID)
		return types.Production{
			ReplicaID:   req.Replica.ID,
			Decision:    decision,
			Explanation: explanation,
			Confidence:  1,
		}, nil
	}
}
