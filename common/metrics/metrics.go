// Package metrics exposes Prometheus instruments for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
	RateLimitDenials  prometheus.Counter
	RetriesTotal      prometheus.Counter
}

// New registers the engine instruments on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2e_executions_total",
			Help: "Workflow executions by final status.",
		}, []string{"status"}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "a2e_execution_duration_seconds",
			Help:    "End-to-end workflow execution duration.",
			Buckets: prometheus.DefBuckets,
		}),
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2e_operations_total",
			Help: "Executed operations by kind and status.",
		}, []string{"kind", "status"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2e_operation_duration_seconds",
			Help:    "Per-operation execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2e_cache_hits_total",
			Help: "Result cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2e_cache_misses_total",
			Help: "Result cache misses.",
		}),
		RateLimitDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2e_rate_limit_denials_total",
			Help: "Operations denied by the rate limiter.",
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2e_retries_total",
			Help: "Operation retry attempts.",
		}),
	}
}

// Nop returns metrics registered on a throwaway registry. Used in tests
// and in embedding scenarios that do not scrape.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
