package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsProposed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_intents_proposed_total",
		Help: "The total number of proposed transaction intents",
	}, []string{"network", "asset"})

	VotesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_votes_recorded_total",
		Help: "The total number of recorded signer votes",
	}, []string{"vote"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_intent_transitions_total",
		Help: "The total number of intent status transitions",
	}, []string{"from", "to"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_executions_total",
		Help: "Execute calls by result",
	}, []string{"result"})

	SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keygate_submit_seconds",
		Help:    "Time taken by the execution gateway to answer a submission",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // Start at 50ms with 10 buckets doubling in size
	})

	IntentsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "keygate_intents",
		Help: "The number of known intents by state",
	}, []string{"state"})

	// Retry related metrics
	RetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_retry_count_total",
		Help: "The total number of scheduled execution retries",
	}, []string{"reason"})

	RetryQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keygate_retry_queue_size",
		Help: "Current size of the retry queue",
	})

	NextRetryIn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keygate_next_retry_seconds",
		Help: "Seconds until the next scheduled retry",
	})

	RetriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_retries_skipped_total",
		Help: "Number of retries that were dropped",
	}, []string{"reason"})

	MaxRetriesReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keygate_max_retries_reached_total",
		Help: "Number of intents that reached maximum retry attempts",
	})

	CircuitBreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keygate_circuit_breaker_trips_total",
		Help: "Number of times the gateway circuit breaker tripped",
	})
)
