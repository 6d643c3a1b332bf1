// Package resonance defines the boundary of a redundant-execution
// consensus engine: a single logical task is fanned out to N replicas,
// each replica's output is canonically hashed, and a decision is
// reached only when a strict supermajority of replicas produce an
// identical hash.
//
// The engine itself lives in package engine. This package holds the
// interfaces of its external collaborators and the error taxonomy
// shared by every layer.
package resonance

import (
	"context"

	"github.com/blockberries/resonance/types"
)

// Producer is the opaque decision-producing backend. The dispatcher
// calls Produce once per replica.
//
// Produce MUST be safe for concurrent use: the dispatcher runs many
// replicas against the same Producer in parallel. It may be slow and
// may block; it is never called while the ledger lock is held.
//
// Implementations SHOULD return promptly once ctx is cancelled. A
// result returned after cancellation is discarded.
type Producer interface {
	Produce(ctx context.Context, req types.ProduceRequest) (types.Production, error)
}

// ProducerFunc adapts an ordinary function to the Producer interface.
type ProducerFunc func(ctx context.Context, req types.ProduceRequest) (types.Production, error)

// Produce calls f(ctx, req).
func (f ProducerFunc) Produce(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
	return f(ctx, req)
}

// Signer signs attestation messages on behalf of a replica.
type Signer interface {
	// Sign returns a signature over msg.
	Sign(msg []byte) ([]byte, error)

	// PublicKey returns the encoded public key matching the signing key.
	PublicKey() []byte
}

// Verifier checks a signature produced by a Signer.
type Verifier interface {
	// Verify reports whether sig is a valid signature over msg under
	// the encoded public key pub. It never panics on malformed input.
	Verify(msg, sig, pub []byte) bool
}

// Halter is the external kill switch. Halt is the terminal action of
// a verification failure: the caller expects it to stop any further
// voting. A nil error acknowledges the halt.
type Halter interface {
	Halt(reason string) error
}

// HalterFunc adapts an ordinary function to the Halter interface.
type HalterFunc func(reason string) error

// Halt calls f(reason).
func (f HalterFunc) Halt(reason string) error { return f(reason) }

// Connection is a transport-agnostic handle to a decision producer.
// Both the gRPC client and the in-process adapter implement it.
type Connection interface {
	Producer

	// Close releases the connection.
	Close() error
}
