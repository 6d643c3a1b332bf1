package types

import (
	"errors"
	"math"
	"time"
)

// LedgerEntry is one append to the shared ledger. Index is assigned
// inside the ledger's critical section: indices are gap-free and
// unique, in arrival order rather than dispatch order.
//
// PayloadDigest lets a record be re-hashed and checked on its own.
type LedgerEntry struct {
	Index         uint64 `json:"index" cramberry:"1"`
	ReplicaID     string `json:"replica_id" cramberry:"2"`
	Payload       []byte `json:"payload" cramberry:"3"`
	PayloadDigest Digest `json:"payload_digest" cramberry:"4"`
	WrittenAt     int64  `json:"written_at_unix_nano" cramberry:"5"`
}

// ResultRecord is the wire and ledger form of a ReplicaResult.
//
// Confidence travels as its IEEE-754 bit pattern so the encoding is
// exact and deterministic; elapsed time travels as nanoseconds.
type ResultRecord struct {
	RoundID        string `cramberry:"1"`
	ReplicaID      string `cramberry:"2"`
	Decision       string `cramberry:"3"`
	Explanation    string `cramberry:"4"`
	ConfidenceBits uint64 `cramberry:"5"`
	Digest         Digest `cramberry:"6"`
	ContextDigest  Digest `cramberry:"7"`
	Signature      []byte `cramberry:"8"`
	PublicKey      []byte `cramberry:"9"`
	ElapsedNanos   int64  `cramberry:"10"`
	Failure        string `cramberry:"11"`
}

// RecordOf converts a result collected in round roundID to its record form.
func RecordOf(roundID string, r ReplicaResult) ResultRecord {
	rec := ResultRecord{
		RoundID:        roundID,
		ReplicaID:      r.ReplicaID,
		Decision:       r.Decision,
		Explanation:    r.Explanation,
		ConfidenceBits: math.Float64bits(r.Confidence),
		Digest:         r.Digest,
		ContextDigest:  r.ContextDigest,
		Signature:      r.Signature,
		PublicKey:      r.PublicKey,
		ElapsedNanos:   r.Elapsed.Nanoseconds(),
	}
	if r.Err != nil {
		rec.Failure = r.Err.Error()
	}
	return rec
}

// Result converts a record back to a ReplicaResult. A recorded failure
// comes back as an opaque error carrying the original message.
func (rec ResultRecord) Result() ReplicaResult {
	r := ReplicaResult{
		ReplicaID:     rec.ReplicaID,
		Decision:      rec.Decision,
		Explanation:   rec.Explanation,
		Confidence:    math.Float64frombits(rec.ConfidenceBits),
		Digest:        rec.Digest,
		ContextDigest: rec.ContextDigest,
		Signature:     rec.Signature,
		PublicKey:     rec.PublicKey,
		Elapsed:       time.Duration(rec.ElapsedNanos),
	}
	if rec.Failure != "" {
		r.Err = errors.New(rec.Failure)
	}
	return r
}
