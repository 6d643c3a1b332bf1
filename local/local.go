// Package local provides an in-process decision producer connection.
//
// For producers compiled into the same binary as the engine, this
// adapter calls the producer directly with no serialization, and
// converts a producer panic into a replica failure so one misbehaving
// replica cannot take down the round.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

// Compile-time interface check.
var _ resonance.Connection = (*Connection)(nil)

// ErrClosed is returned by Produce after Close.
var ErrClosed = errors.New("local: connection closed")

// Connection wraps an in-process Producer.
type Connection struct {
	producer resonance.Producer
	closed   atomic.Bool
}

// NewConnection creates an in-process connection to producer.
func NewConnection(producer resonance.Producer) *Connection {
	return &Connection{producer: producer}
}

// Produce calls the wrapped producer. A panic inside it is returned as
// an error.
func (c *Connection) Produce(ctx context.Context, req types.ProduceRequest) (prod types.Production, err error) {
	if c.closed.Load() {
		return types.Production{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return types.Production{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			prod = types.Production{}
			err = fmt.Errorf("local: producer panicked for replica %s: %v", req.Replica.ID, r)
		}
	}()
	return c.producer.Produce(ctx, req)
}

// Close marks the connection closed.
func (c *Connection) Close() error {
	c.closed.Store(true)
	return nil
}
