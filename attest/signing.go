package attest

import (
	"context"
	"fmt"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// Signing wraps producer so that every production is signed by signer
// over its output digest and the context digest the producer reports
// having used.
func Signing(producer resonance.Producer, signer resonance.Signer) resonance.Producer {
	return resonance.ProducerFunc(func(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
		p, err := producer.Produce(ctx, req)
		if err != nil {
			return p, err
		}
		if err := canon.CheckOutput(p.Decision, p.Explanation); err != nil {
			return types.Production{}, fmt.Errorf("attest: sign replica %s: %w", req.Replica.ID, err)
		}
		contextDigest := req.ContextDigest
		if !p.ContextDigest.IsZero() {
			contextDigest = p.ContextDigest
		}
		msg := canon.AttestationMessage(canon.OutputDigest(p.Decision, p.Explanation), contextDigest)
		sig, err := signer.Sign(msg)
		if err != nil {
			return types.Production{}, fmt.Errorf("attest: sign replica %s: %w", req.Replica.ID, err)
		}
		p.Signature = sig
		p.PublicKey = signer.PublicKey()
		return p, nil
	})
}
