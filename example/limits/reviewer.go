// Package limits implements a minimal decision producer that checks a
// transaction amount against a spending limit. It demonstrates
// resolving the sealed context by digest and answering
// deterministically, so every replica resonates.
//
// The amount is read from the task payload, falling back to the
// context; the limit is read from the context only.
package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/contextsync"
	"github.com/blockberries/resonance/types"
)

// Compile-time interface check.
var _ resonance.Producer = (*Reviewer)(nil)

const (
	Approve = "APPROVE"
	Reject  = "REJECT"
)

var (
	// ErrUnresolvedContext is returned when the context digest is not
	// held by the reviewer's ledger.
	ErrUnresolvedContext = errors.New("limits: context not resolvable")

	// ErrMissingField is returned when amount or limit is absent.
	ErrMissingField = errors.New("limits: missing field")
)

// Reviewer approves amounts at or under the limit and rejects the rest.
type Reviewer struct {
	contexts *contextsync.Ledger
}

// New creates a reviewer resolving context blocks through contexts.
func New(contexts *contextsync.Ledger) *Reviewer {
	return &Reviewer{contexts: contexts}
}

func (r *Reviewer) Produce(ctx context.Context, req types.ProduceRequest) (types.Production, error) {
	if err := ctx.Err(); err != nil {
		return types.Production{}, err
	}
	if !req.Replica.Profile.Allows(req.Task.Kind) {
		return types.Production{}, fmt.Errorf("limits: replica %s may not %q", req.Replica.ID, req.Task.Kind)
	}

	block, ok := r.contexts.Resolve(req.ContextDigest)
	if !ok {
		return types.Production{}, fmt.Errorf("%w: %s", ErrUnresolvedContext, req.ContextDigest.Short())
	}

	raw, ok := req.Task.Payload["amount"]
	if !ok {
		raw, ok = block.Payload["amount"]
	}
	if !ok {
		return types.Production{}, fmt.Errorf("%w: amount", ErrMissingField)
	}
	amount, err := number(raw)
	if err != nil {
		return types.Production{}, fmt.Errorf("limits: amount: %w", err)
	}
	limitRaw, ok := block.Payload["limit"]
	if !ok {
		return types.Production{}, fmt.Errorf("%w: limit", ErrMissingField)
	}
	limit, err := number(limitRaw)
	if err != nil {
		return types.Production{}, fmt.Errorf("limits: limit: %w", err)
	}

	p := types.Production{
		ReplicaID:     req.Replica.ID,
		Confidence:    1,
		ContextDigest: block.Digest,
	}
	if amount.Cmp(limit) <= 0 {
		p.Decision = Approve
		p.Explanation = fmt.Sprintf("amount %s within limit %s", format(amount), format(limit))
	} else {
		p.Decision = Reject
		p.Explanation = fmt.Sprintf("amount %s exceeds limit %s", format(amount), format(limit))
	}
	return p, nil
}

// number converts a payload value to an exact rational. Values decoded
// from canonical JSON arrive as json.Number; in-process payloads may
// carry Go numeric types.
func number(v any) (*big.Rat, error) {
	switch x := v.(type) {
	case json.Number:
		r, ok := new(big.Rat).SetString(x.String())
		if !ok {
			return nil, fmt.Errorf("not a number: %q", x)
		}
		return r, nil
	case int:
		return new(big.Rat).SetInt64(int64(x)), nil
	case int64:
		return new(big.Rat).SetInt64(x), nil
	case uint64:
		return new(big.Rat).SetFrac(new(big.Int).SetUint64(x), big.NewInt(1)), nil
	case float64:
		r := new(big.Rat)
		if r.SetFloat64(x) == nil {
			return nil, fmt.Errorf("not a finite number: %v", x)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func format(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.FloatString(4)
}
