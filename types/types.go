// Package types defines the core data types of the resonance engine:
// tasks, sealed context blocks, replica handles and their results,
// consensus verdicts, and ledger entries.
//
// These are plain Go structs. Types that cross a process boundary or
// land in the append ledger carry cramberry struct tags for
// deterministic binary serialization; types that land in the audit
// log carry JSON tags.
package types

import (
	"encoding/hex"
	"fmt"
)

// DigestSize is the length in bytes of a Digest.
const DigestSize = 32

// Digest is a 32-byte content hash produced by the canonical hasher.
type Digest [DigestSize]byte

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

// String returns the lowercase hex encoding of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short returns the first 16 hex characters, for logs.
func (d Digest) Short() string { return d.String()[:16] }

// MarshalText implements encoding.TextMarshaler so digests appear as
// hex in JSON records, including as map keys.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest decodes a hex-encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest: expected %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Payload is an opaque structured value: a mapping from unique string
// keys to JSON-compatible values. Key order carries no meaning; the
// canonical hasher sorts keys before hashing.
type Payload map[string]any

// Task is an immutable unit of work handed to every replica of a round.
type Task struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Payload Payload `json:"payload,omitempty"`
}
