package types

import (
	"maps"
	"slices"
	"time"
)

// DissonanceDecision is the decision reported by a round in which no
// output digest reached quorum. It is neither an approval nor a
// rejection and must be escalated.
const DissonanceDecision = "DISSONANCE"

// RoundMeta records what a voting round was run against.
type RoundMeta struct {
	TaskID         string        `json:"task_id"`
	TaskKind       string        `json:"task_kind,omitempty"`
	Template       string        `json:"template,omitempty"`
	ContextDigest  Digest        `json:"context_digest"`
	Quorum         int           `json:"quorum"`
	Timestamp      time.Time     `json:"timestamp"`
	Latency        time.Duration `json:"latency_ns"`
	FailedReplicas []string      `json:"failed_replicas,omitempty"`
}

// ConsensusResult is the sole output of a voting round.
//
// On consensus the winning fields are copied from one of the agreeing
// replicas. On dissonance Decision is DissonanceDecision, Confidence is
// zero and Digest is the zero digest. Histogram is populated in both
// cases.
type ConsensusResult struct {
	RoundID           string         `json:"round_id"`
	Decision          string         `json:"decision"`
	Explanation       string         `json:"explanation"`
	Confidence        float64        `json:"confidence"`
	Digest            Digest         `json:"digest"`
	VoteCount         int            `json:"vote_count"`
	TotalReplicas     int            `json:"total_replicas"`
	ResonanceRate     float64        `json:"resonance_rate"`
	ConsensusAchieved bool           `json:"consensus_achieved"`
	Histogram         map[Digest]int `json:"histogram"`
	Meta              RoundMeta      `json:"meta"`
}

// Dissonant reports whether the round ended without consensus.
func (c ConsensusResult) Dissonant() bool { return !c.ConsensusAchieved }

// Clone returns a deep copy of c, so retained history never aliases
// what callers receive.
func (c ConsensusResult) Clone() ConsensusResult {
	c.Histogram = maps.Clone(c.Histogram)
	c.Meta.FailedReplicas = slices.Clone(c.Meta.FailedReplicas)
	return c
}
