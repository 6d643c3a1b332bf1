package local_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/contextsync"
	"github.com/blockberries/resonance/engine"
	"github.com/blockberries/resonance/local"
	resonancetest "github.com/blockberries/resonance/testing"
	"github.com/blockberries/resonance/types"
)

func TestLocalCompliance(t *testing.T) {
	resonancetest.RunProducerSuite(t, func(*contextsync.Ledger) resonance.Producer {
		return local.NewConnection(resonancetest.NewMockProducer("APPROVE", "ok"))
	}, types.Task{ID: "t1", Kind: "review"}, types.Payload{"amount": 1})
}

func TestLocalPanicBecomesReplicaFailure(t *testing.T) {
	p := &resonancetest.MockProducer{}
	p.ProduceFn = func(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
		if req.Replica.ID == "auditor-003" {
			panic("model crashed")
		}
		return types.Production{ReplicaID: req.Replica.ID, Decision: "APPROVE", Confidence: 1}, nil
	}
	conn := local.NewConnection(p)

	_, err := conn.Produce(context.Background(), types.ProduceRequest{
		Replica: types.ReplicaHandle{ID: "auditor-003"},
	})
	require.ErrorContains(t, err, "model crashed")

	h := resonancetest.NewHarness(t, conn, engine.Config{})
	result := h.RunConsensus(resonancetest.Request(5, 3), "APPROVE")
	require.Equal(t, 4, result.VoteCount)
	require.Equal(t, []string{"auditor-003"}, result.Meta.FailedReplicas)
}

func TestLocalClosed(t *testing.T) {
	conn := local.NewConnection(resonancetest.NewMockProducer("APPROVE", "ok"))
	require.NoError(t, conn.Close())
	_, err := conn.Produce(context.Background(), types.ProduceRequest{})
	require.ErrorIs(t, err, local.ErrClosed)
}

func TestLocalCancelledContext(t *testing.T) {
	p := resonancetest.NewMockProducer("APPROVE", "ok")
	conn := local.NewConnection(p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Produce(ctx, types.ProduceRequest{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, p.ProduceCalls.Load())
}
