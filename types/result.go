package types

import "time"

// ProduceRequest is what a decision producer receives for one replica.
// The producer sees the context only by digest and must resolve it
// through whatever channel the integrator provides.
type ProduceRequest struct {
	Replica       ReplicaHandle
	Task          Task
	ContextDigest Digest
}

// Production is the raw answer of a decision producer for one replica.
//
// ReplicaID must echo the replica identity from the request; a
// mismatch is an identity violation. Signature and PublicKey are only
// required when the round runs with attestation enabled.
//
// ContextDigest is the digest of the context the producer actually
// reasoned over. Left zero, it defaults to the digest it was given.
type Production struct {
	ReplicaID     string
	Decision      string
	Explanation   string
	Confidence    float64
	Signature     []byte
	PublicKey     []byte
	ContextDigest Digest
}

// ReplicaResult is the outcome of one replica's execution as collected
// by the dispatcher.
//
// Digest is the canonical output digest over Decision and Explanation.
// Two results with identical Decision and Explanation always carry the
// same Digest regardless of which replica produced them.
type ReplicaResult struct {
	ReplicaID     string
	Decision      string
	Explanation   string
	Confidence    float64
	Digest        Digest
	Signature     []byte
	PublicKey     []byte
	ContextDigest Digest
	Elapsed       time.Duration

	// Err is set when the replica failed to produce. A failed result
	// contributes no vote.
	Err error
}

// OK returns true if the replica produced a result.
func (r ReplicaResult) OK() bool { return r.Err == nil }
