package vote

import (
	"fmt"
	"sync/atomic"
)

// RoundState is a state of the round state machine.
type RoundState uint32

const (
	// StatePending: created, no replica has been dispatched.
	StatePending RoundState = iota
	// StateExecuting: replicas are running. Results may not be tallied.
	StateExecuting
	// StateTallying: every result was collected and admitted.
	StateTallying
	// StateConsensus: a digest reached quorum. Terminal.
	StateConsensus
	// StateDissonance: no digest reached quorum. Terminal.
	StateDissonance
	// StateAborted: the round failed before a verdict. Terminal.
	StateAborted
)

func (s RoundState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateExecuting:
		return "EXECUTING"
	case StateTallying:
		return "TALLYING"
	case StateConsensus:
		return "CONSENSUS"
	case StateDissonance:
		return "DISSONANCE"
	case StateAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s RoundState) Terminal() bool {
	return s == StateConsensus || s == StateDissonance || s == StateAborted
}

// Round enforces the lifecycle of one voting round:
//
//	PENDING -> EXECUTING -> TALLYING -> CONSENSUS | DISSONANCE
//
// with ABORTED reachable from any non-terminal state. An illegal
// transition is a programming error and panics.
type Round struct {
	id    string
	state atomic.Uint32
}

// NewRound creates a round in the PENDING state.
func NewRound(id string) *Round {
	r := &Round{id: id}
	r.state.Store(uint32(StatePending))
	return r
}

// ID returns the round identifier.
func (r *Round) ID() string { return r.id }

// State returns the current state.
func (r *Round) State() RoundState {
	return RoundState(r.state.Load())
}

// BeginExecute transitions PENDING -> EXECUTING.
func (r *Round) BeginExecute() {
	r.transition(StatePending, StateExecuting)
}

// BeginTally transitions EXECUTING -> TALLYING.
func (r *Round) BeginTally() {
	r.transition(StateExecuting, StateTallying)
}

// Conclude transitions TALLYING to CONSENSUS or DISSONANCE.
func (r *Round) Conclude(consensus bool) {
	to := StateDissonance
	if consensus {
		to = StateConsensus
	}
	r.transition(StateTallying, to)
}

// Abort moves a non-terminal round to ABORTED and returns the state it
// left. Aborting a terminal round panics.
func (r *Round) Abort() RoundState {
	for {
		cur := RoundState(r.state.Load())
		if cur.Terminal() {
			panic(fmt.Sprintf("resonance/vote: round %s aborted in terminal state %s", r.id, cur))
		}
		if r.state.CompareAndSwap(uint32(cur), uint32(StateAborted)) {
			return cur
		}
	}
}

func (r *Round) transition(from, to RoundState) {
	if !r.state.CompareAndSwap(uint32(from), uint32(to)) {
		panic(fmt.Sprintf("resonance/vote: round %s cannot move to %s from state %s (expected %s)",
			r.id, to, RoundState(r.state.Load()), from))
	}
}
