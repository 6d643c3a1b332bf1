package resonancegrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/attest"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/contextsync"
	"github.com/blockberries/resonance/engine"
	resonancegrpc "github.com/blockberries/resonance/grpc"
	resonancetest "github.com/blockberries/resonance/testing"
	"github.com/blockberries/resonance/types"
)

// startServer starts a gRPC server on a random port and returns the
// listener address. The server is stopped when the test ends.
func startServer(t *testing.T, gs *resonancegrpc.GRPCServer) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer()
	gs.Register(s)
	go func() {
		// Serve returns once GracefulStop runs.
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.GracefulStop)
	return lis.Addr().String()
}

func dial(t *testing.T, addr string) *resonancegrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := resonancegrpc.Dial(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGRPC_ProduceRoundTrip(t *testing.T) {
	ctxDigest := canon.Sum([]byte("facts"))
	received := make(chan types.ProduceRequest, 1)
	p := &resonancetest.MockProducer{}
	p.ProduceFn = func(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
		received <- req
		return types.Production{
			ReplicaID:     req.Replica.ID,
			Decision:      "APPROVE",
			Explanation:   "amount 50000 within limit",
			Confidence:    0.875,
			Signature:     []byte{1, 2, 3},
			PublicKey:     []byte{4, 5},
			ContextDigest: req.ContextDigest,
		}, nil
	}
	client := dial(t, startServer(t, resonancegrpc.NewGRPCServer(p)))

	handle := types.ReplicaHandle{
		ID:       "auditor-007",
		ParentID: "auditor",
		Sequence: 7,
		Profile:  resonancetest.DefaultTemplate(),
	}
	prod, err := client.Produce(context.Background(), types.ProduceRequest{
		Replica:       handle,
		Task:          types.Task{ID: "t1", Kind: "review", Payload: types.Payload{"amount": 50000, "note": "<b>"}},
		ContextDigest: ctxDigest,
	})
	require.NoError(t, err)

	require.Equal(t, "auditor-007", prod.ReplicaID)
	require.Equal(t, "APPROVE", prod.Decision)
	require.Equal(t, 0.875, prod.Confidence)
	require.Equal(t, []byte{1, 2, 3}, prod.Signature)
	require.Equal(t, ctxDigest, prod.ContextDigest)

	got := <-received
	require.Equal(t, handle, got.Replica)
	require.Equal(t, ctxDigest, got.ContextDigest)
	require.Equal(t, json.Number("50000"), got.Task.Payload["amount"])
	require.Equal(t, "<b>", got.Task.Payload["note"])
}

func TestGRPC_ProducerErrorIsReplicaFailure(t *testing.T) {
	p := &resonancetest.MockProducer{}
	p.ProduceFn = func(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
		switch req.Replica.ID {
		case "auditor-002":
			return types.Production{}, errors.New("model overloaded")
		case "auditor-004":
			panic("model crashed")
		}
		return types.Production{ReplicaID: req.Replica.ID, Decision: "APPROVE", Explanation: "ok", Confidence: 1}, nil
	}
	client := dial(t, startServer(t, resonancegrpc.NewGRPCServer(p)))

	_, err := client.Produce(context.Background(), types.ProduceRequest{Replica: types.ReplicaHandle{ID: "auditor-002"}})
	require.Error(t, err)
	require.Equal(t, codes.Unknown, status.Code(err))

	h := resonancetest.NewHarness(t, client, engine.Config{})
	result := h.RunConsensus(resonancetest.Request(5, 3), "APPROVE")
	require.Equal(t, 3, result.VoteCount)
	require.Equal(t, []string{"auditor-002", "auditor-004"}, result.Meta.FailedReplicas)
}

func TestGRPC_UnserializableTask(t *testing.T) {
	client := dial(t, startServer(t, resonancegrpc.NewGRPCServer(resonancetest.NewMockProducer("APPROVE", "ok"))))
	_, err := client.Produce(context.Background(), types.ProduceRequest{
		Task: types.Task{ID: "t1", Payload: types.Payload{"c": make(chan int)}},
	})
	require.ErrorIs(t, err, resonance.ErrUnserializablePayload)
}

func TestGRPC_AttestedRound(t *testing.T) {
	scheme, err := attest.LookupScheme("")
	require.NoError(t, err)
	signer, err := attest.GenerateSigner(scheme)
	require.NoError(t, err)

	// Signing happens on the remote side; the engine only verifies.
	remote := attest.Signing(resonancetest.NewMockProducer("REJECT", "amount exceeds limit"), signer)
	client := dial(t, startServer(t, resonancegrpc.NewGRPCServer(remote)))

	var halts atomic.Int32
	h := resonancetest.NewHarness(t, client, engine.Config{
		Verifier: attest.NewVerifier(scheme),
		Halter:   resonance.HalterFunc(func(string) error { halts.Add(1); return nil }),
	})
	req := resonancetest.Request(5, 3)
	req.Attestation = true
	result := h.RunConsensus(req, "REJECT")
	require.Equal(t, 5, result.VoteCount)
	require.Zero(t, halts.Load())
}

func TestGRPC_Compliance(t *testing.T) {
	client := dial(t, startServer(t, resonancegrpc.NewGRPCServer(resonancetest.NewMockProducer("APPROVE", "ok"))))
	resonancetest.RunProducerSuite(t, func(*contextsync.Ledger) resonance.Producer {
		return client
	}, types.Task{ID: "t1", Kind: "review", Payload: types.Payload{"amount": 5}}, types.Payload{"limit": 10})
}
