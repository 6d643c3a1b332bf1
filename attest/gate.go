// Package attest implements the attestation gate: when a round runs
// with attestation enabled, every replica result must carry a valid
// signature over its output digest bound to the round's context digest.
//
// A single failed verification vetoes the whole round. The gate does
// not weigh it against how many other replicas agreed: it invokes the
// kill switch and rejects everything.
package attest

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// Gate verifies replica attestations.
type Gate struct {
	verifier resonance.Verifier
	halter   resonance.Halter
	logger   *zap.Logger
}

// NewGate creates a gate. verifier and halter are required; logger may
// be nil.
func NewGate(verifier resonance.Verifier, halter resonance.Halter, logger *zap.Logger) (*Gate, error) {
	if verifier == nil || halter == nil {
		return nil, resonance.ErrAttestationUnavailable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{verifier: verifier, halter: halter, logger: logger}, nil
}

// Admit checks one result against the context digest of its round. It
// does not halt; see AdmitAll.
func (g *Gate) Admit(r types.ReplicaResult, contextDigest types.Digest) error {
	fail := func(reason error) error {
		return &resonance.VerificationError{ReplicaID: r.ReplicaID, Reason: reason}
	}
	if len(r.Signature) == 0 || len(r.PublicKey) == 0 {
		return fail(resonance.ErrMissingSignature)
	}
	if r.ContextDigest != contextDigest {
		return fail(resonance.ErrContextBinding)
	}
	if canon.CheckOutput(r.Decision, r.Explanation) != nil {
		return fail(resonance.ErrInvalidSignature)
	}
	// The message is rebuilt from the output, never taken from the
	// replica.
	msg := canon.AttestationMessage(canon.OutputDigest(r.Decision, r.Explanation), contextDigest)
	if !g.verifier.Verify(msg, r.Signature, r.PublicKey) {
		return fail(resonance.ErrInvalidSignature)
	}
	return nil
}

// AdmitAll admits every successful result or none. On the first failure
// it calls the halter and returns the *resonance.VerificationError.
// Failed replicas carry no output and are skipped.
func (g *Gate) AdmitAll(results []types.ReplicaResult, contextDigest types.Digest) error {
	for _, r := range results {
		if !r.OK() {
			continue
		}
		err := g.Admit(r, contextDigest)
		if err == nil {
			continue
		}
		reason := fmt.Sprintf("attestation failed for replica %s", r.ReplicaID)
		g.logger.Error("SCRAM: attestation failure, halting",
			zap.String("replicaID", r.ReplicaID),
			zap.Stringer("contextDigest", contextDigest),
			zap.Error(err),
		)
		if herr := g.halter.Halt(reason); herr != nil {
			g.logger.Error("halt failed", zap.Error(herr))
		}
		return err
	}
	return nil
}
