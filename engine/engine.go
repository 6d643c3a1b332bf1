// Package engine runs resonance rounds: it seals the context, spawns
// replicas from a template, dispatches them concurrently, gates their
// attestations, tallies the vote and retains the verdict.
//
// An Engine is safe for concurrent use. Rounds are independent; they
// share only the context ledger, the append ledger and the history.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/attest"
	"github.com/blockberries/resonance/contextsync"
	"github.com/blockberries/resonance/dispatch"
	"github.com/blockberries/resonance/pool"
	"github.com/blockberries/resonance/types"
	"github.com/blockberries/resonance/vote"
)

// RoundRequest describes one round.
type RoundRequest struct {
	Task     types.Task
	Context  types.Payload
	Template string
	Replicas int
	Quorum   int

	// MaxConcurrency of zero uses the engine default.
	MaxConcurrency int

	// Attestation requires every replica result to carry a valid
	// signature. A single failure halts the engine.
	Attestation bool

	Policy dispatch.Policy
}

// Stats summarizes the rounds an engine has run.
type Stats struct {
	Rounds            int     `json:"rounds"`
	Consensus         int     `json:"consensus"`
	Dissonance        int     `json:"dissonance"`
	Aborted           int     `json:"aborted"`
	ConsensusRate     float64 `json:"consensus_rate"`
	MeanResonanceRate float64 `json:"mean_resonance_rate"`
	LedgerEntries     int     `json:"ledger_entries"`
	Halted            bool    `json:"halted"`
}

type historyItem struct {
	seq    uint64
	result types.ConsensusResult
}

// Engine is the resonance consensus engine.
type Engine struct {
	producer resonance.Producer
	registry *pool.Registry
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics
	contexts *contextsync.Ledger
	ledger   *dispatch.Ledger

	halted atomic.Bool

	mu      sync.Mutex
	running map[uint64]context.CancelCauseFunc
	runSeq  uint64
	history *btree.BTreeG[historyItem]
	seq     uint64
	stats   Stats
	rateSum float64
}

// New creates an engine running rounds against producer with replicas
// spawned from registry.
func New(producer resonance.Producer, registry *pool.Registry, cfg Config) (*Engine, error) {
	if producer == nil {
		return nil, fmt.Errorf("engine: producer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	contexts := cfg.Contexts
	if contexts == nil {
		var err error
		contexts, err = contextsync.NewLedger(
			contextsync.WithCapacity(cfg.ContextCapacity),
			contextsync.WithClock(cfg.Clock),
		)
		if err != nil {
			return nil, err
		}
	}
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("engine: register metrics: %w", err)
	}

	return &Engine{
		producer: producer,
		registry: registry,
		cfg:      cfg,
		logger:   cfg.Logger.Named("engine"),
		metrics:  m,
		contexts: contexts,
		ledger:   dispatch.NewLedger(),
		running:  make(map[uint64]context.CancelCauseFunc),
		history: btree.NewG(32, func(a, b historyItem) bool {
			return a.seq < b.seq
		}),
	}, nil
}

// Contexts returns the context ledger rounds seal into.
func (e *Engine) Contexts() *contextsync.Ledger { return e.contexts }

// RunRound runs one round and returns its verdict.
//
// Disagreement is a normal outcome: a round without quorum returns a
// result whose decision is types.DissonanceDecision and a nil error.
// Errors are configuration errors (nothing ran), a
// *resonance.DispatchAbortedError, or integrity errors:
// *resonance.IdentityViolationError, *resonance.ContextDriftError,
// *resonance.VerificationError and resonance.ErrHalted.
//
// A halt also stops rounds already in flight: their dispatch is
// cancelled and they return an error matching resonance.ErrHalted
// without reaching history.
func (e *Engine) RunRound(ctx context.Context, req RoundRequest) (types.ConsensusResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	run, err := e.enter(cancel)
	if err != nil {
		return types.ConsensusResult{}, err
	}
	defer e.leave(run)
	start := e.cfg.Clock()

	maxConcurrency := req.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = e.cfg.MaxConcurrency
	}
	if maxConcurrency < 1 {
		return types.ConsensusResult{}, fmt.Errorf("%w: got %d", resonance.ErrInvalidConcurrency, maxConcurrency)
	}
	if req.Replicas < 1 {
		return types.ConsensusResult{}, fmt.Errorf("%w: got %d", resonance.ErrInvalidReplicaCount, req.Replicas)
	}
	if err := vote.ValidateQuorum(req.Quorum, req.Replicas); err != nil {
		return types.ConsensusResult{}, err
	}

	replicas := pool.New(e.registry)
	defer replicas.Close()
	handles, err := replicas.Spawn(req.Template, req.Replicas)
	if err != nil {
		return types.ConsensusResult{}, err
	}

	block, err := e.contexts.Seal(req.Context)
	if err != nil {
		return types.ConsensusResult{}, err
	}

	var gate *attest.Gate
	if req.Attestation {
		if e.cfg.Verifier == nil || e.cfg.Halter == nil {
			return types.ConsensusResult{}, resonance.ErrAttestationUnavailable
		}
		gate, err = attest.NewGate(e.cfg.Verifier, resonance.HalterFunc(e.halt), e.logger)
		if err != nil {
			return types.ConsensusResult{}, err
		}
	}

	round := vote.NewRound(uuid.NewString())
	logger := e.logger.With(zap.String("roundID", round.ID()), zap.String("taskID", req.Task.ID))
	ctx, span := e.cfg.Tracer.Start(ctx, "Engine.RunRound", trace.WithAttributes(
		attribute.String("roundID", round.ID()),
		attribute.String("taskID", req.Task.ID),
		attribute.String("template", req.Template),
		attribute.Int("replicas", req.Replicas),
		attribute.Int("quorum", req.Quorum),
		attribute.Bool("attestation", req.Attestation),
	))
	defer span.End()

	fail := func(err error) (types.ConsensusResult, error) {
		from := round.Abort()
		e.recordAbort(start, types.AbortRecord{
			Kind:          types.AbortKind,
			RoundID:       round.ID(),
			TaskID:        req.Task.ID,
			Template:      req.Template,
			ContextDigest: block.Digest,
			State:         from.String(),
			Class:         resonance.Classify(err).String(),
			Replicas:      abortedReplicas(err),
			Reason:        err.Error(),
			Timestamp:     start.UTC(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("round aborted",
			zap.Stringer("state", from),
			zap.Stringer("class", resonance.Classify(err)),
			zap.Error(err),
		)
		return types.ConsensusResult{}, err
	}

	round.BeginExecute()
	d := dispatch.New(e.producer,
		dispatch.WithPolicy(req.Policy),
		dispatch.WithLogger(logger),
		dispatch.WithLedger(e.ledger),
	)
	report, err := d.Dispatch(ctx, dispatch.Request{
		RoundID:        round.ID(),
		Handles:        handles,
		Task:           req.Task,
		ContextDigest:  block.Digest,
		MaxConcurrency: maxConcurrency,
	})
	e.metrics.replicaFailures.Add(float64(report.Failed))
	e.metrics.peakConcurrency.Set(float64(report.PeakConcurrency))
	e.metrics.ledgerEntries.Set(float64(e.ledger.Len()))
	if err != nil {
		if errors.Is(context.Cause(ctx), resonance.ErrHalted) {
			err = &resonance.DispatchAbortedError{Cause: resonance.ErrHalted}
		}
		return fail(err)
	}

	observed := make(map[string]types.Digest, len(report.Results))
	for _, r := range report.Results {
		if r.OK() {
			observed[r.ReplicaID] = r.ContextDigest
		}
	}
	if drifted := contextsync.DetectDrift(block, observed); len(drifted) > 0 {
		return fail(&resonance.ContextDriftError{Replicas: drifted})
	}
	if !contextsync.Verify(block) {
		return fail(resonance.ErrContextCorrupted)
	}
	if gate != nil {
		if err := gate.AdmitAll(report.Results, block.Digest); err != nil {
			return fail(err)
		}
	}

	if e.halted.Load() {
		return fail(resonance.ErrHalted)
	}
	round.BeginTally()
	result, err := vote.Vote(report.Results, req.Quorum, types.RoundMeta{
		TaskID:        req.Task.ID,
		TaskKind:      req.Task.Kind,
		Template:      req.Template,
		ContextDigest: block.Digest,
		Timestamp:     start.UTC(),
		Latency:       e.cfg.Clock().Sub(start),
	})
	if err != nil {
		return fail(err)
	}
	result.RoundID = round.ID()
	if err := e.commit(result); err != nil {
		return fail(err)
	}
	round.Conclude(result.ConsensusAchieved)

	span.SetAttributes(
		attribute.String("decision", result.Decision),
		attribute.Int("voteCount", result.VoteCount),
		attribute.Bool("consensus", result.ConsensusAchieved),
	)
	if result.ConsensusAchieved {
		logger.Info("consensus reached",
			zap.String("decision", result.Decision),
			zap.Int("votes", result.VoteCount),
			zap.Int("replicas", result.TotalReplicas),
			zap.Stringer("digest", result.Digest),
		)
	} else {
		logger.Warn("dissonance detected",
			zap.Int("largestGroup", result.VoteCount),
			zap.Int("replicas", result.TotalReplicas),
			zap.Int("distinctOutputs", len(result.Histogram)),
		)
	}
	return result.Clone(), nil
}

// enter registers a running round so a halt can cancel it.
func (e *Engine) enter(cancel context.CancelCauseFunc) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted.Load() {
		return 0, resonance.ErrHalted
	}
	e.runSeq++
	e.running[e.runSeq] = cancel
	return e.runSeq, nil
}

func (e *Engine) leave(run uint64) {
	e.mu.Lock()
	delete(e.running, run)
	e.mu.Unlock()
}

// commit retains result and feeds the audit sink. It refuses once the
// engine is halted; the check shares a lock with halt, so no verdict is
// retained after the kill switch fired.
func (e *Engine) commit(result types.ConsensusResult) error {
	e.mu.Lock()
	if e.halted.Load() {
		e.mu.Unlock()
		return resonance.ErrHalted
	}
	e.seq++
	e.history.ReplaceOrInsert(historyItem{seq: e.seq, result: result.Clone()})
	if limit := e.cfg.HistoryLimit; limit > 0 {
		for e.history.Len() > limit {
			e.history.DeleteMin()
		}
	}
	e.stats.Rounds++
	if result.ConsensusAchieved {
		e.stats.Consensus++
	} else {
		e.stats.Dissonance++
	}
	e.rateSum += result.ResonanceRate
	e.mu.Unlock()

	outcome := outcomeDissonance
	if result.ConsensusAchieved {
		outcome = outcomeConsensus
	}
	e.metrics.rounds.WithLabelValues(outcome).Inc()
	e.metrics.roundDuration.Observe(result.Meta.Latency.Seconds())

	if e.cfg.Sink != nil {
		if err := e.cfg.Sink.Record(result.Clone()); err != nil {
			e.logger.Error("audit sink failed",
				zap.String("roundID", result.RoundID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// recordAbort counts an aborted round and feeds the audit sink, so
// integrity aborts leave a trace next to the verdicts.
func (e *Engine) recordAbort(start time.Time, record types.AbortRecord) {
	record.Latency = e.cfg.Clock().Sub(start)
	e.metrics.rounds.WithLabelValues(outcomeAborted).Inc()
	e.metrics.roundDuration.Observe(record.Latency.Seconds())

	e.mu.Lock()
	e.stats.Rounds++
	e.stats.Aborted++
	e.mu.Unlock()

	if e.cfg.Sink != nil {
		if err := e.cfg.Sink.Abort(record); err != nil {
			e.logger.Error("audit sink failed",
				zap.String("roundID", record.RoundID),
				zap.Error(err),
			)
		}
	}
}

func abortedReplicas(err error) []string {
	if v, ok := resonance.IsVerification(err); ok {
		return []string{v.ReplicaID}
	}
	if v, ok := resonance.IsIdentityViolation(err); ok {
		return []string{v.Expected}
	}
	if d, ok := resonance.IsContextDrift(err); ok {
		return slices.Clone(d.Replicas)
	}
	return nil
}

// halt latches the engine, cancels every round in flight and forwards
// to the configured kill switch.
func (e *Engine) halt(reason string) error {
	e.mu.Lock()
	e.halted.Store(true)
	for _, cancel := range e.running {
		cancel(resonance.ErrHalted)
	}
	e.mu.Unlock()

	e.logger.Error("engine halted", zap.String("reason", reason))
	return e.cfg.Halter.Halt(reason)
}

// Halted reports whether an attestation failure has halted the engine.
func (e *Engine) Halted() bool { return e.halted.Load() }

// Resume clears the halt latch. Call it only once the cause of the
// attestation failure has been dealt with.
func (e *Engine) Resume() {
	if e.halted.CompareAndSwap(true, false) {
		e.logger.Warn("engine resumed after halt")
	}
}

// History returns up to limit retained results, newest first. A limit
// of zero or less returns all of them. The results are copies.
func (e *Engine) History(limit int) []types.ConsensusResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.history.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.ConsensusResult, 0, n)
	e.history.Descend(func(item historyItem) bool {
		if len(out) == n {
			return false
		}
		out = append(out, item.result.Clone())
		return true
	})
	return out
}

// Stats returns aggregate round statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := e.stats
	if decided := s.Consensus + s.Dissonance; decided > 0 {
		s.ConsensusRate = float64(s.Consensus) / float64(decided)
		s.MeanResonanceRate = e.rateSum / float64(decided)
	}
	e.mu.Unlock()

	s.LedgerEntries = e.ledger.Len()
	s.Halted = e.halted.Load()
	return s
}

// LedgerEntries returns a consistent copy of the shared append ledger.
func (e *Engine) LedgerEntries() []types.LedgerEntry {
	return e.ledger.Entries()
}
