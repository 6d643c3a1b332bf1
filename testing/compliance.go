package resonancetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/contextsync"
	"github.com/blockberries/resonance/engine"
	"github.com/blockberries/resonance/types"
)

// RunProducerSuite runs a standard compliance suite against a decision
// producer to verify it can take part in resonance rounds.
//
// The factory function should return a fresh producer for each test.
// It receives the context ledger the suite seals facts into, so
// producers that resolve context by digest can be wired to it. task and
// facts are what the producer is asked about.
func RunProducerSuite(t *testing.T, factory func(*contextsync.Ledger) resonance.Producer, task types.Task, facts types.Payload) {
	t.Helper()

	contexts, err := contextsync.NewLedger()
	if err != nil {
		t.Fatalf("context ledger: %v", err)
	}
	block, err := contexts.Seal(facts)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	ctxDigest := block.Digest
	request := func(seq int) types.ProduceRequest {
		tmpl := DefaultTemplate()
		return types.ProduceRequest{
			Replica: types.ReplicaHandle{
				ID:       fmt.Sprintf("%s-%03d", tmpl.ID, seq),
				ParentID: tmpl.ID,
				Sequence: uint32(seq),
				Profile:  tmpl,
			},
			Task:          task,
			ContextDigest: ctxDigest,
		}
	}

	t.Run("echoes_replica_identity", func(t *testing.T) {
		p := factory(contexts)
		for seq := 1; seq <= 10; seq++ {
			req := request(seq)
			got, err := p.Produce(bg(), req)
			if err != nil {
				t.Fatalf("Produce(%s): %v", req.Replica.ID, err)
			}
			if got.ReplicaID != req.Replica.ID {
				t.Fatalf("replica %s answered as %q", req.Replica.ID, got.ReplicaID)
			}
		}
	})

	t.Run("deterministic_output", func(t *testing.T) {
		p := factory(contexts)
		first, err := p.Produce(bg(), request(1))
		if err != nil {
			t.Fatalf("Produce: %v", err)
		}
		if err := canon.CheckOutput(first.Decision, first.Explanation); err != nil {
			t.Fatalf("output: %v", err)
		}
		want := canon.OutputDigest(first.Decision, first.Explanation)
		for seq := 2; seq <= 5; seq++ {
			got, err := p.Produce(bg(), request(seq))
			if err != nil {
				t.Fatalf("Produce: %v", err)
			}
			if err := canon.CheckOutput(got.Decision, got.Explanation); err != nil {
				t.Fatalf("replica %d output: %v", seq, err)
			}
			if d := canon.OutputDigest(got.Decision, got.Explanation); d != want {
				t.Fatalf("replica %d output %s differs from replica 1 output %s", seq, d.Short(), want.Short())
			}
		}
	})

	t.Run("confidence_in_range", func(t *testing.T) {
		got, err := factory(contexts).Produce(bg(), request(1))
		if err != nil {
			t.Fatalf("Produce: %v", err)
		}
		if !(got.Confidence >= 0 && got.Confidence <= 1) {
			t.Fatalf("confidence %v outside [0, 1]", got.Confidence)
		}
	})

	t.Run("concurrent_use", func(t *testing.T) {
		p := factory(contexts)
		const n = 32
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := request(i + 1)
				got, err := p.Produce(bg(), req)
				if err == nil && got.ReplicaID != req.Replica.ID {
					err = fmt.Errorf("replica %s answered as %q", req.Replica.ID, got.ReplicaID)
				}
				errs[i] = err
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}
	})

	t.Run("full_round_consensus", func(t *testing.T) {
		h := NewHarness(t, factory(contexts), engine.Config{Contexts: contexts})
		req := Request(5, 3)
		req.Task = task
		req.Context = facts
		result := h.Run(req)
		if !result.ConsensusAchieved {
			t.Fatalf("expected consensus, got dissonance: %s", result.Explanation)
		}
		if result.VoteCount != 5 {
			t.Fatalf("expected 5 votes, got %d", result.VoteCount)
		}
	})
}

func bg() context.Context { return context.Background() }
