package resonance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityViolationError(t *testing.T) {
	err := &IdentityViolationError{Expected: "auditor-001", Reported: "auditor-002"}
	require.Equal(t, `resonance: identity violation: replica "auditor-001" reported as "auditor-002"`, err.Error())

	wrapped := fmt.Errorf("round r1: %w", err)
	got, ok := IsIdentityViolation(wrapped)
	require.True(t, ok)
	require.Equal(t, "auditor-001", got.Expected)

	_, ok = IsIdentityViolation(errors.New("plain"))
	require.False(t, ok)

	_, ok = IsIdentityViolation(nil)
	require.False(t, ok)
}

func TestVerificationErrorUnwrap(t *testing.T) {
	err := &VerificationError{ReplicaID: "auditor-003", Reason: ErrInvalidSignature}
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Equal(t, "resonance: verification failed for replica auditor-003: invalid signature", err.Error())

	got, ok := IsVerification(fmt.Errorf("gate: %w", err))
	require.True(t, ok)
	require.Equal(t, "auditor-003", got.ReplicaID)
}

func TestDispatchAbortedUnwrap(t *testing.T) {
	err := &DispatchAbortedError{Cause: context.Canceled}
	require.ErrorIs(t, err, context.Canceled)

	_, ok := IsDispatchAborted(err)
	require.True(t, ok)
}

func TestContextDriftError(t *testing.T) {
	err := &ContextDriftError{Replicas: []string{"a-001", "a-004"}}
	require.Equal(t, "resonance: context drift detected on replicas [a-001, a-004]", err.Error())

	_, ok := IsContextDrift(err)
	require.True(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"quorum", fmt.Errorf("vote: %w", ErrInvalidQuorum), ClassConfiguration},
		{"template", ErrUnknownTemplate, ClassConfiguration},
		{"payload", fmt.Errorf("seal: %w", ErrUnserializablePayload), ClassConfiguration},
		{"aborted", &DispatchAbortedError{Cause: errors.New("backend down")}, ClassExecution},
		{"identity", &IdentityViolationError{Expected: "a", Reported: "b"}, ClassIntegrity},
		{"verification", &VerificationError{ReplicaID: "a", Reason: ErrInvalidSignature}, ClassIntegrity},
		{"aborted by identity", &DispatchAbortedError{Cause: &IdentityViolationError{Expected: "a", Reported: "b"}}, ClassIntegrity},
		{"drift", &ContextDriftError{Replicas: []string{"a"}}, ClassIntegrity},
		{"digest", ErrDigestMismatch, ClassIntegrity},
		{"halted", ErrHalted, ClassIntegrity},
		{"other", errors.New("boom"), ClassExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorClassString(t *testing.T) {
	require.Equal(t, "integrity", ClassIntegrity.String())
	require.Equal(t, "unknown(9)", ErrorClass(9).String())
}
