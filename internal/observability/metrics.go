package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., lambdakit_...).
const namespace = "lambdakit"

var (
	// HTTPReqDuration measures the latency of HTTP requests in the demo API.
	// Metric: lambdakit_api_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// HTTPReqTotal counts the total number of HTTP requests.
	// Metric: lambdakit_api_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// IdempotencyOutcomes tracks how each idempotent invocation resolved.
	// Labels: executed (handler ran), replayed (stored response returned),
	// in_progress (concurrent duplicate rejected), error (handler or
	// persistence failure).
	// Metric: lambdakit_idempotency_outcomes_total
	IdempotencyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "idempotency",
		Name:      "outcomes_total",
		Help:      "Idempotent invocation outcomes",
	}, []string{"outcome"})

	// FlagEvaluations counts feature flag evaluations by result.
	// Metric: lambdakit_flags_evaluations_total
	FlagEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flags",
		Name:      "evaluations_total",
		Help:      "Feature flag evaluations",
	}, []string{"feature", "result"})

	// SchemaValidationFailures counts schemas rejected at evaluation time.
	// Metric: lambdakit_flags_schema_validation_failures_total
	SchemaValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flags",
		Name:      "schema_validation_failures_total",
		Help:      "Flag schemas rejected by validation",
	})
)

// Idempotency outcome label values.
const (
	OutcomeExecuted   = "executed"
	OutcomeReplayed   = "replayed"
	OutcomeInProgress = "in_progress"
	OutcomeError      = "error"
)
