// Package dispatch runs the replicas of one round concurrently against
// a decision producer.
//
// Every replica execution is joined before Dispatch returns. Results
// keep the identity of the handle they were dispatched for, and each
// collected result is appended to a shared Ledger under a single-writer
// lock that is never held across a producer call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// Policy selects how a replica failure affects the rest of the round.
type Policy uint8

const (
	// CollectAll runs every replica to completion or individual failure.
	// A failed replica simply contributes no vote.
	CollectAll Policy = iota

	// FailFast aborts the round on the first replica failure: pending
	// replicas never start and in-flight ones see a cancelled context.
	FailFast
)

func (p Policy) String() string {
	switch p {
	case CollectAll:
		return "collect-all"
	case FailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// Request describes one dispatch.
type Request struct {
	RoundID        string
	Handles        []types.ReplicaHandle
	Task           types.Task
	ContextDigest  types.Digest
	MaxConcurrency int
}

// Report is the outcome of a completed dispatch.
type Report struct {
	// Results holds one entry per handle, in handle order. Failed
	// replicas are represented with Err set.
	Results         []types.ReplicaResult
	Completed       int
	Failed          int
	PeakConcurrency int
	Elapsed         time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy sets the failure policy. The default is CollectAll.
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithLedger sets the ledger results are appended to. By default each
// Dispatcher owns a fresh one.
func WithLedger(l *Ledger) Option {
	return func(d *Dispatcher) { d.ledger = l }
}

// Dispatcher fans a task out to replicas. It is safe to call Dispatch
// from several goroutines; they share the ledger.
type Dispatcher struct {
	producer resonance.Producer
	ledger   *Ledger
	policy   Policy
	logger   *zap.Logger
}

// New creates a dispatcher over producer.
func New(producer resonance.Producer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		producer: producer,
		policy:   CollectAll,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ledger == nil {
		d.ledger = NewLedger()
	}
	return d
}

// Ledger returns the ledger this dispatcher appends to.
func (d *Dispatcher) Ledger() *Ledger { return d.ledger }

// Policy returns the dispatcher's failure policy.
func (d *Dispatcher) Policy() Policy { return d.policy }

// Dispatch runs one replica execution per handle, at most
// req.MaxConcurrency at a time, and returns once every execution has
// been joined.
//
// An identity violation is returned as *resonance.IdentityViolationError
// under both policies. Cancellation of ctx, or a replica failure under
// FailFast, returns *resonance.DispatchAbortedError. In both cases the
// report must not be voted on.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Report, error) {
	if req.MaxConcurrency < 1 {
		return Report{}, fmt.Errorf("%w: got %d", resonance.ErrInvalidConcurrency, req.MaxConcurrency)
	}

	start := time.Now()
	results := make([]types.ReplicaResult, len(req.Handles))
	collected := make([]bool, len(req.Handles))

	var inFlight, peak atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.MaxConcurrency)

	for i, h := range req.Handles {
		if gctx.Err() != nil {
			break
		}
		// Go blocks while MaxConcurrency executions are running.
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			notePeak(&peak, inFlight.Add(1))
			defer inFlight.Add(-1)

			res, err := d.execute(gctx, h, req)
			if err != nil {
				return err
			}
			if gctx.Err() != nil {
				// Produced after the round was aborted: discarded.
				return gctx.Err()
			}
			results[i] = res
			collected[i] = true
			d.record(req.RoundID, res)

			if !res.OK() {
				d.logger.Debug("replica failed",
					zap.String("roundID", req.RoundID),
					zap.String("replicaID", h.ID),
					zap.Error(res.Err),
				)
				if d.policy == FailFast {
					return res.Err
				}
			}
			return nil
		})
	}
	err := g.Wait()

	report := Report{
		PeakConcurrency: int(peak.Load()),
		Elapsed:         time.Since(start),
	}
	for i, ok := range collected {
		if !ok {
			continue
		}
		if results[i].OK() {
			report.Completed++
		} else {
			report.Failed++
		}
	}

	if v, ok := resonance.IsIdentityViolation(err); ok {
		d.logger.Error("identity violation",
			zap.String("roundID", req.RoundID),
			zap.String("expected", v.Expected),
			zap.String("reported", v.Reported),
		)
		return report, v
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, &resonance.DispatchAbortedError{Cause: ctxErr}
	}
	if err != nil {
		return report, &resonance.DispatchAbortedError{Cause: err}
	}

	report.Results = results
	return report, nil
}

// execute makes the producer call for one handle. A producer failure is
// a replica failure and comes back in the result; only an identity
// violation is returned as an error.
func (d *Dispatcher) execute(ctx context.Context, h types.ReplicaHandle, req Request) (types.ReplicaResult, error) {
	start := time.Now()
	prod, err := d.producer.Produce(ctx, types.ProduceRequest{
		Replica:       h,
		Task:          req.Task,
		ContextDigest: req.ContextDigest,
	})
	res := types.ReplicaResult{
		ReplicaID:     h.ID,
		ContextDigest: req.ContextDigest,
		Elapsed:       time.Since(start),
	}
	if err != nil {
		res.Err = err
		return res, nil
	}
	if prod.ReplicaID != h.ID {
		return res, &resonance.IdentityViolationError{Expected: h.ID, Reported: prod.ReplicaID}
	}
	if math.IsNaN(prod.Confidence) || prod.Confidence < 0 || prod.Confidence > 1 {
		res.Err = fmt.Errorf("%w: %v", resonance.ErrInvalidConfidence, prod.Confidence)
		return res, nil
	}
	if err := canon.CheckOutput(prod.Decision, prod.Explanation); err != nil {
		res.Err = err
		return res, nil
	}

	res.Decision = prod.Decision
	res.Explanation = prod.Explanation
	res.Confidence = prod.Confidence
	res.Digest = canon.OutputDigest(prod.Decision, prod.Explanation)
	res.Signature = prod.Signature
	res.PublicKey = prod.PublicKey
	if !prod.ContextDigest.IsZero() {
		res.ContextDigest = prod.ContextDigest
	}
	return res, nil
}

// record appends res to the ledger. Called after the producer returned,
// never while a producer call is outstanding on this goroutine.
func (d *Dispatcher) record(roundID string, res types.ReplicaResult) {
	payload, err := cramberry.Marshal(types.RecordOf(roundID, res))
	if err != nil {
		d.logger.Error("failed to encode ledger record",
			zap.String("roundID", roundID),
			zap.String("replicaID", res.ReplicaID),
			zap.Error(err),
		)
		return
	}
	d.ledger.Append(res.ReplicaID, payload)
}

func notePeak(peak *atomic.Int64, n int64) {
	for {
		cur := peak.Load()
		if n <= cur || peak.CompareAndSwap(cur, n) {
			return
		}
	}
}

// DecodeRecord decodes the payload of a ledger entry written by a
// Dispatcher and checks it against the entry's payload digest.
func DecodeRecord(e types.LedgerEntry) (types.ResultRecord, error) {
	if canon.Sum(e.Payload) != e.PayloadDigest {
		return types.ResultRecord{}, errors.New("dispatch: ledger entry payload digest mismatch")
	}
	var rec types.ResultRecord
	if err := cramberry.Unmarshal(e.Payload, &rec); err != nil {
		return types.ResultRecord{}, fmt.Errorf("dispatch: decode ledger record: %w", err)
	}
	return rec, nil
}
