package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/contextsync"
)

const (
	// DefaultMaxConcurrency bounds replica fan-out when a round request
	// does not set its own limit.
	DefaultMaxConcurrency = 8

	// DefaultHistoryLimit is the number of consensus results retained.
	DefaultHistoryLimit = 10_000

	tracerName = "github.com/blockberries/resonance/engine"
)

// Config configures an Engine. Start from DefaultConfig; nil
// collaborators are replaced with their defaults by New.
type Config struct {
	// Logger receives structured engine logs.
	Logger *zap.Logger

	// Registerer receives the engine's metrics. The default is a
	// private registry, so several engines can coexist.
	Registerer prometheus.Registerer

	// Tracer opens one span per round.
	Tracer trace.Tracer

	// Verifier and Halter are required for rounds that request
	// attestation. Halter is the external kill switch.
	Verifier resonance.Verifier
	Halter   resonance.Halter

	// Contexts is the context ledger rounds seal into. Share it with
	// producers that resolve context by digest.
	Contexts *contextsync.Ledger

	// Sink, if set, receives every consensus result. Sink errors are
	// logged and never fail a round.
	Sink AuditSink

	// Clock stamps round metadata.
	Clock func() time.Time

	// MaxConcurrency is used by rounds that leave it unset.
	MaxConcurrency int

	// ContextCapacity bounds the context ledger created when Contexts
	// is nil.
	ContextCapacity int

	// HistoryLimit bounds retained results. Zero selects
	// DefaultHistoryLimit; a negative value keeps everything.
	HistoryLimit int
}

// DefaultConfig returns a configuration with every default filled in.
func DefaultConfig() Config {
	return Config{
		Logger:          zap.NewNop(),
		Registerer:      prometheus.NewRegistry(),
		Tracer:          otel.Tracer(tracerName),
		Clock:           time.Now,
		MaxConcurrency:  DefaultMaxConcurrency,
		ContextCapacity: contextsync.DefaultCapacity,
		HistoryLimit:    DefaultHistoryLimit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Registerer == nil {
		c.Registerer = d.Registerer
	}
	if c.Tracer == nil {
		c.Tracer = d.Tracer
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.ContextCapacity == 0 && c.Contexts == nil {
		c.ContextCapacity = d.ContextCapacity
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	return c
}

// Validate checks the numeric settings.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: MaxConcurrency=%d", resonance.ErrInvalidConcurrency, c.MaxConcurrency))
	}
	if c.Contexts == nil && c.ContextCapacity < 1 {
		errs = append(errs, fmt.Errorf("engine: ContextCapacity must be positive, got %d", c.ContextCapacity))
	}
	if (c.Verifier == nil) != (c.Halter == nil) {
		errs = append(errs, errors.New("engine: Verifier and Halter must be configured together"))
	}
	return errors.Join(errs...)
}
