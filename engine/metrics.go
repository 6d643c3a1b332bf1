package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resonance"

// Outcome labels of rounds_total.
const (
	outcomeConsensus  = "consensus"
	outcomeDissonance = "dissonance"
	outcomeAborted    = "aborted"
)

type metrics struct {
	rounds          *prometheus.CounterVec
	replicaFailures prometheus.Counter
	peakConcurrency prometheus.Gauge
	roundDuration   prometheus.Histogram
	ledgerEntries   prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Number of rounds run, by outcome",
		}, []string{"outcome"}),
		replicaFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replica_failures_total",
			Help:      "Number of replica executions that failed to produce",
		}),
		peakConcurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_peak_concurrency",
			Help:      "Peak concurrent replica executions in the last dispatched round",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Wall time of rounds that reached dispatch",
			Buckets:   prometheus.DefBuckets,
		}),
		ledgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_entries",
			Help:      "Number of entries in the shared append ledger",
		}),
	}

	err := errors.Join(
		registerer.Register(m.rounds),
		registerer.Register(m.replicaFailures),
		registerer.Register(m.peakConcurrency),
		registerer.Register(m.roundDuration),
		registerer.Register(m.ledgerEntries),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
