package resonancetest

import (
	"context"
	"testing"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/engine"
	"github.com/blockberries/resonance/pool"
	"github.com/blockberries/resonance/types"
)

// TemplateID is the ID of DefaultTemplate.
const TemplateID = "auditor"

// DefaultTemplate returns the template registered by NewHarness.
func DefaultTemplate() types.Template {
	return types.Template{
		ID:         TemplateID,
		Name:       "Risk Auditor",
		Role:       "risk-auditor",
		Operations: []string{"review"},
		Scope:      "payments",
	}
}

// Request returns a round request against DefaultTemplate.
func Request(replicas, quorum int) engine.RoundRequest {
	return engine.RoundRequest{
		Task:     types.Task{ID: "task-1", Kind: "review"},
		Context:  types.Payload{"amount": 50000, "limit": 100000},
		Template: TemplateID,
		Replicas: replicas,
		Quorum:   quorum,
	}
}

// Harness runs rounds against a producer through a real engine.
type Harness struct {
	t   testing.TB
	eng *engine.Engine
}

// NewHarness creates an engine over producer with DefaultTemplate
// registered. Zero-value fields of cfg take their defaults.
func NewHarness(t testing.TB, producer resonance.Producer, cfg engine.Config) *Harness {
	t.Helper()
	reg, err := pool.NewRegistry(DefaultTemplate())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	eng, err := engine.New(producer, reg, cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &Harness{t: t, eng: eng}
}

// Engine returns the underlying engine for direct access.
func (h *Harness) Engine() *engine.Engine {
	return h.eng
}

// Run runs a round and fails the test on error.
func (h *Harness) Run(req engine.RoundRequest) types.ConsensusResult {
	h.t.Helper()
	result, err := h.eng.RunRound(context.Background(), req)
	if err != nil {
		h.t.Fatalf("RunRound: %v", err)
	}
	return result
}

// RunConsensus runs a round and fails the test unless it reached
// consensus on decision.
func (h *Harness) RunConsensus(req engine.RoundRequest, decision string) types.ConsensusResult {
	h.t.Helper()
	result := h.Run(req)
	if !result.ConsensusAchieved {
		h.t.Fatalf("expected consensus on %q, got dissonance (largest group %d of %d)",
			decision, result.VoteCount, result.TotalReplicas)
	}
	if result.Decision != decision {
		h.t.Fatalf("expected decision %q, got %q", decision, result.Decision)
	}
	return result
}
