package types

import "time"

// ContextBlock is a sealed snapshot of the facts a task is reasoned
// over. Digest is always the canonical hash of Payload; a changed
// context is a new block, never an update to an existing one.
//
// Payload is a detached copy owned by the block. Mutating it after
// sealing is detectable: re-verification will fail.
type ContextBlock struct {
	ID        string    `json:"id"`
	Payload   Payload   `json:"payload"`
	Digest    Digest    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}
