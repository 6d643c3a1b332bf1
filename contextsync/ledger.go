// Package contextsync implements the context ledger: it seals the
// facts a task is reasoned over into immutable, digest-identified
// blocks and detects when replicas were given different facts.
//
// Sealing is the only operation that can fail. Verification, resonance
// checks and drift detection return plain booleans and lists so callers
// can take a fail-closed decision themselves.
package contextsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// DefaultCapacity is the number of sealed blocks kept resolvable by
// digest when no capacity is configured.
const DefaultCapacity = 1024

// sealed is what the index keeps per digest. The canonical bytes are
// the source of truth; payloads handed out are always decoded afresh.
type sealed struct {
	id        string
	canonical []byte
	createdAt time.Time
}

// Ledger seals context payloads and keeps recently sealed blocks
// resolvable by digest. It is safe for concurrent use.
type Ledger struct {
	index *lru.Cache
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*ledgerOptions)

type ledgerOptions struct {
	capacity int
	now      func() time.Time
}

// WithCapacity bounds the number of blocks resolvable by digest.
func WithCapacity(n int) Option {
	return func(o *ledgerOptions) { o.capacity = n }
}

// WithClock overrides the clock used to stamp sealed blocks.
func WithClock(now func() time.Time) Option {
	return func(o *ledgerOptions) { o.now = now }
}

// NewLedger creates a context ledger.
func NewLedger(opts ...Option) (*Ledger, error) {
	o := ledgerOptions{capacity: DefaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 1 {
		return nil, fmt.Errorf("contextsync: capacity must be positive, got %d", o.capacity)
	}
	index, err := lru.New(o.capacity)
	if err != nil {
		return nil, fmt.Errorf("contextsync: create index: %w", err)
	}
	return &Ledger{index: index, now: o.now}, nil
}

// Seal canonicalizes payload and returns an immutable block carrying a
// detached copy of it. Two payloads that differ only in key order seal
// to the same digest. Nothing is registered when sealing fails.
func (l *Ledger) Seal(payload types.Payload) (types.ContextBlock, error) {
	if payload == nil {
		payload = types.Payload{}
	}
	canonical, err := canon.Canonicalize(payload)
	if err != nil {
		return types.ContextBlock{}, err
	}
	detached, err := decode(canonical)
	if err != nil {
		return types.ContextBlock{}, fmt.Errorf("%w: %v", resonance.ErrUnserializablePayload, err)
	}

	digest := canon.Sum(canonical)
	entry := sealed{
		id:        uuid.NewString(),
		canonical: canonical,
		createdAt: l.now().UTC(),
	}
	// Resealing identical facts keeps the first block's identity, also
	// when two seals of the same facts race.
	if prev, ok, _ := l.index.PeekOrAdd(digest, entry); ok {
		entry = prev.(sealed)
		l.index.Get(digest) // refresh recency
	}

	return types.ContextBlock{
		ID:        entry.id,
		Payload:   detached,
		Digest:    digest,
		CreatedAt: entry.createdAt,
	}, nil
}

// Resolve returns the sealed block with the given digest, if it is
// still held. The block is re-verified before it is handed out and
// carries a payload copy the caller may freely mutate.
func (l *Ledger) Resolve(digest types.Digest) (types.ContextBlock, bool) {
	v, ok := l.index.Get(digest)
	if !ok {
		return types.ContextBlock{}, false
	}
	entry := v.(sealed)
	if canon.Sum(entry.canonical) != digest {
		return types.ContextBlock{}, false
	}
	payload, err := decode(entry.canonical)
	if err != nil {
		return types.ContextBlock{}, false
	}
	return types.ContextBlock{
		ID:        entry.id,
		Payload:   payload,
		Digest:    digest,
		CreatedAt: entry.createdAt,
	}, true
}

// Len returns the number of blocks currently resolvable.
func (l *Ledger) Len() int { return l.index.Len() }

// Verify recomputes the digest of block's payload and reports whether
// it still matches. It never panics; an unserializable payload simply
// fails verification.
func Verify(block types.ContextBlock) bool {
	d, err := canon.Digest(block.Payload)
	if err != nil {
		return false
	}
	return d == block.Digest
}

// CheckResonance reports whether every block carries the same digest.
// An empty set has nothing to agree on and does not resonate.
func CheckResonance(blocks []types.ContextBlock) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks[1:] {
		if b.Digest != blocks[0].Digest {
			return false
		}
	}
	return true
}

// DetectDrift returns, sorted, the replica IDs whose observed context
// digest differs from expected's.
func DetectDrift(expected types.ContextBlock, observed map[string]types.Digest) []string {
	var drifted []string
	for id, d := range observed {
		if d != expected.Digest {
			drifted = append(drifted, id)
		}
	}
	slices.Sort(drifted)
	return drifted
}

func decode(canonical []byte) (types.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	var p types.Payload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if p == nil {
		p = types.Payload{}
	}
	return p, nil
}
