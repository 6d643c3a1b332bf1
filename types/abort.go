package types

import (
	"slices"
	"time"
)

// AbortKind tags audit records of aborted rounds, so a log mixing
// verdicts and aborts can be told apart line by line.
const AbortKind = "abort"

// AbortRecord is the audit form of a round that ended in an error
// instead of a verdict. Replicas names the replicas the error points
// at: the one that failed attestation, the one that broke identity, or
// those whose context drifted.
type AbortRecord struct {
	Kind          string        `json:"kind"`
	RoundID       string        `json:"round_id"`
	TaskID        string        `json:"task_id"`
	Template      string        `json:"template,omitempty"`
	ContextDigest Digest        `json:"context_digest"`
	State         string        `json:"state"`
	Class         string        `json:"class"`
	Replicas      []string      `json:"replicas,omitempty"`
	Reason        string        `json:"reason"`
	Timestamp     time.Time     `json:"timestamp"`
	Latency       time.Duration `json:"latency_ns"`
}

// Clone returns a deep copy of a.
func (a AbortRecord) Clone() AbortRecord {
	a.Replicas = slices.Clone(a.Replicas)
	return a
}
