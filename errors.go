package resonance

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors. These are detected before any replica runs,
// are returned synchronously and are never retried automatically.
var (
	ErrInvalidQuorum          = errors.New("resonance: quorum must be a strict supermajority of replicas")
	ErrUnknownTemplate        = errors.New("resonance: unknown replica template")
	ErrUnserializablePayload  = errors.New("resonance: payload cannot be canonicalized")
	ErrInvalidReplicaCount    = errors.New("resonance: replica count must be at least 1")
	ErrInvalidConcurrency     = errors.New("resonance: max concurrency must be at least 1")
	ErrAttestationUnavailable = errors.New("resonance: attestation requested but no verifier or halter configured")
	ErrPoolClosed             = errors.New("resonance: replica pool is closed")
)

// Integrity errors. Always fatal to the round and never downgraded to
// dissonance.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingSignature = errors.New("missing signature")
	ErrContextBinding   = errors.New("signature bound to a different context")
	ErrDigestMismatch   = errors.New("resonance: result digest does not match its output")
	ErrContextCorrupted = errors.New("resonance: sealed context failed re-verification")

	// ErrHalted is returned for every round attempted after the kill
	// switch fired, until the engine is explicitly resumed. Rounds in
	// flight when it fires fail with it too.
	ErrHalted = errors.New("resonance: engine halted by attestation failure")
)

// ErrInvalidConfidence marks a production whose confidence lies
// outside [0, 1]. The replica is treated as failed.
var ErrInvalidConfidence = errors.New("resonance: confidence outside [0, 1]")

// IdentityViolationError signals that a replica's result carried an
// identity other than the one assigned to it at dispatch time. The
// round is corrupted and must not be voted on.
type IdentityViolationError struct {
	Expected string
	Reported string
}

func (e *IdentityViolationError) Error() string {
	return fmt.Sprintf("resonance: identity violation: replica %q reported as %q", e.Expected, e.Reported)
}

// VerificationError signals that a replica result failed attestation.
// It is a SCRAM-class event: the round is aborted and the kill switch
// is invoked.
type VerificationError struct {
	ReplicaID string
	Reason    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("resonance: verification failed for replica %s: %v", e.ReplicaID, e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Reason }

// DispatchAbortedError signals that a round was cancelled before every
// replica was collected, either by the fail-fast policy or by the
// caller's context. An aborted round never reaches the voter.
type DispatchAbortedError struct {
	Cause error
}

func (e *DispatchAbortedError) Error() string {
	return fmt.Sprintf("resonance: dispatch aborted: %v", e.Cause)
}

func (e *DispatchAbortedError) Unwrap() error { return e.Cause }

// ContextDriftError signals that some replicas reported running
// against a context digest other than the sealed one (split-brain).
type ContextDriftError struct {
	Replicas []string
}

func (e *ContextDriftError) Error() string {
	return fmt.Sprintf("resonance: context drift detected on replicas [%s]", strings.Join(e.Replicas, ", "))
}

// IsIdentityViolation checks whether an error is an
// IdentityViolationError and returns it.
func IsIdentityViolation(err error) (*IdentityViolationError, bool) {
	var e *IdentityViolationError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsVerification checks whether an error is a VerificationError and
// returns it.
func IsVerification(err error) (*VerificationError, bool) {
	var e *VerificationError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsDispatchAborted checks whether an error is a DispatchAbortedError
// and returns it.
func IsDispatchAborted(err error) (*DispatchAbortedError, bool) {
	var e *DispatchAbortedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsContextDrift checks whether an error is a ContextDriftError and
// returns it.
func IsContextDrift(err error) (*ContextDriftError, bool) {
	var e *ContextDriftError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ErrorClass groups errors by how callers are expected to react.
type ErrorClass uint8

const (
	// ClassNone is the class of a nil error.
	ClassNone ErrorClass = iota
	// ClassConfiguration: fix the request; nothing ran.
	ClassConfiguration
	// ClassExecution: a replica or the round failed to run; retry as a
	// new round.
	ClassExecution
	// ClassIntegrity: forged, corrupted or divergent input or output;
	// alert, do not retry blindly.
	ClassIntegrity
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassConfiguration:
		return "configuration"
	case ClassExecution:
		return "execution"
	case ClassIntegrity:
		return "integrity"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Classify maps err onto the error taxonomy. Integrity is checked
// first so that an integrity error wrapped in an abort is still
// reported as integrity.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	if IsIntegrity(err) {
		return ClassIntegrity
	}
	for _, target := range []error{
		ErrInvalidQuorum,
		ErrUnknownTemplate,
		ErrUnserializablePayload,
		ErrInvalidReplicaCount,
		ErrInvalidConcurrency,
		ErrAttestationUnavailable,
		ErrPoolClosed,
	} {
		if errors.Is(err, target) {
			return ClassConfiguration
		}
	}
	return ClassExecution
}

// IsIntegrity reports whether err belongs to the integrity class.
func IsIntegrity(err error) bool {
	if _, ok := IsIdentityViolation(err); ok {
		return true
	}
	if _, ok := IsVerification(err); ok {
		return true
	}
	if _, ok := IsContextDrift(err); ok {
		return true
	}
	return errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrContextCorrupted) ||
		errors.Is(err, ErrHalted)
}
