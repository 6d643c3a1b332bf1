package resonancetest

import (
	"testing"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/contextsync"
	"github.com/blockberries/resonance/engine"
	"github.com/blockberries/resonance/types"
)

func TestMockProducerCompliance(t *testing.T) {
	RunProducerSuite(t, func(*contextsync.Ledger) resonance.Producer {
		return NewMockProducer("APPROVE", "within limit")
	}, types.Task{ID: "t1", Kind: "review"}, types.Payload{"amount": 10})
}

func TestHarnessRecordsSeenReplicas(t *testing.T) {
	p := NewMockProducer("APPROVE", "ok")
	h := NewHarness(t, p, engine.Config{})
	result := h.RunConsensus(Request(3, 2), "APPROVE")

	if result.VoteCount != 3 {
		t.Fatalf("expected 3 votes, got %d", result.VoteCount)
	}
	seen := p.Seen()
	want := []string{"auditor-001", "auditor-002", "auditor-003"}
	if len(seen) != len(want) {
		t.Fatalf("seen %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen %v, want %v", seen, want)
		}
	}
	if got := p.ProduceCalls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}
