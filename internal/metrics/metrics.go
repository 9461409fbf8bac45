// Package metrics defines the coordinator's Prometheus instrumentation.
// Grounded on SAGE-X-project-sage's internal/metrics: a dedicated Registry,
// promauto.With(Registry) constructors, and Namespace/Subsystem-qualified
// metric names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signer"

// Registry is the coordinator's private Prometheus registry, rather than
// the global default, so tests can construct isolated instances.
var Registry = prometheus.NewRegistry()

var (
	// SessionsCreated counts createTxSession/createMessageSession outcomes.
	SessionsCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total signing sessions created, by outcome.",
		},
		[]string{"outcome"}, // allowed, policy_blocked, rejected
	)

	// SessionsActive mirrors session.Table's current size.
	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of currently active signing sessions.",
		},
	)

	// RoundsProcessed counts processRound calls by completion state.
	RoundsProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "processed_total",
			Help:      "Total signing rounds processed, by terminal state.",
		},
		[]string{"result"}, // ok, scheme_error, forbidden, internal
	)

	// RoundDuration measures how long one processRound call takes.
	RoundDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "duration_seconds",
			Help:      "Duration of a single processRound call.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// SigningCompletions counts completeSign/completeMessageSign outcomes.
	SigningCompletions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "completions_total",
			Help:      "Total completeSign/completeMessageSign calls, by audit status.",
		},
		[]string{"request_type", "status"}, // SIGN_TX|SIGN_MESSAGE, APPROVED|FAILED
	)

	// PolicyViolations counts blocked intents by violation type.
	PolicyViolations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "violations_total",
			Help:      "Total policy violations observed, by violation type.",
		},
		[]string{"type"},
	)

	// ChainErrors counts Transaction Populator / Chain Adapter failures.
	ChainErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "errors_total",
			Help:      "Total chain adapter errors, by call.",
		},
		[]string{"call"}, // populate, build, decode, serialize, broadcast
	)
)
