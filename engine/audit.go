package engine

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/blockberries/resonance/types"
)

// AuditSink receives every consensus result the engine produces and a
// record of every round that aborted after dispatch began.
// Implementations must be safe for concurrent use.
type AuditSink interface {
	Record(result types.ConsensusResult) error
	Abort(record types.AbortRecord) error
}

// JSONLSink writes one self-contained JSON record per line. Each record
// carries its digests and histogram, so it can be checked without
// reading earlier lines.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLSink creates a sink writing to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{enc: enc}
}

// Record appends result as one line.
func (s *JSONLSink) Record(result types.ConsensusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(result)
}

// Abort appends record as one line. Its kind field is types.AbortKind.
func (s *JSONLSink) Abort(record types.AbortRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record)
}

// WriteLedger writes entries to w as JSON lines. Each line carries the
// encoded record and its payload digest, so dispatch.DecodeRecord can
// check it on its own.
func WriteLedger(w io.Writer, entries []types.LedgerEntry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
