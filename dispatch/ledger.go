package dispatch

import (
	"slices"
	"sync"
	"time"

	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// Ledger is the append-only record shared by every replica of every
// round. All access goes through one mutex: the write index is taken
// inside the critical section, so indices are unique and gap-free by
// construction.
type Ledger struct {
	now func() time.Time

	mu      sync.Mutex
	entries []types.LedgerEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Append records payload on behalf of replicaID and returns the entry.
// Indices start at 0 and follow arrival order.
func (l *Ledger) Append(replicaID string, payload []byte) types.LedgerEntry {
	// Hashing happens before the lock is taken.
	digest := canon.Sum(payload)
	payload = slices.Clone(payload)
	at := l.now().UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()
	e := types.LedgerEntry{
		Index:         uint64(len(l.entries)),
		ReplicaID:     replicaID,
		Payload:       payload,
		PayloadDigest: digest,
		WrittenAt:     at,
	}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of every entry in index order.
func (l *Ledger) Entries() []types.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
