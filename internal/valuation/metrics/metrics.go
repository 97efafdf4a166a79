package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the valuation pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Source attempts by source and outcome (ok, timeout, rate_limited, ...)
	SourceAttempts *prometheus.CounterVec

	// Source call latency by source
	SourceLatency *prometheus.HistogramVec

	// Cache lookups by tier (memory, redis) and result (hit, miss, error)
	CacheLookups *prometheus.CounterVec

	// Pipeline runs by outcome (estimated, cache_hit, no_data, error)
	PipelineOutcomes *prometheus.CounterVec

	// Full pipeline latency for runs that reached the sources
	PipelineLatency prometheus.Histogram

	// Callers that waited on another caller's in-flight computation
	SharedFlights prometheus.Counter

	// Rate-limit cooldowns armed by source
	CooldownsArmed *prometheus.CounterVec
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a Metrics instance registered with reg. Tests pass
// a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawnval_source_attempts_total",
			Help: "Source fetch attempts by source and outcome",
		}, []string{"source", "outcome"}),

		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pawnval_source_duration_seconds",
			Help:    "Duration of source fetches by source",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawnval_cache_lookups_total",
			Help: "Valuation cache lookups by tier and result",
		}, []string{"tier", "result"}),

		PipelineOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawnval_valuations_total",
			Help: "Valuation requests by outcome",
		}, []string{"outcome"}),

		PipelineLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pawnval_valuation_duration_seconds",
			Help:    "Duration of valuations that consulted sources",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		SharedFlights: f.NewCounter(prometheus.CounterOpts{
			Name: "pawnval_valuation_shared_total",
			Help: "Valuation requests served by another request's in-flight computation",
		}),

		CooldownsArmed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawnval_source_cooldowns_total",
			Help: "Rate-limit cooldowns armed by source",
		}, []string{"source"}),
	}
}

// ObserveSourceAttempt records one source call and its outcome.
func (m *Metrics) ObserveSourceAttempt(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceAttempts.WithLabelValues(source, outcome).Inc()
	m.SourceLatency.WithLabelValues(source).Observe(d.Seconds())
}

// RecordCacheLookup records a cache lookup result for a tier.
func (m *Metrics) RecordCacheLookup(tier, result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(tier, result).Inc()
	}
}

// IncrementOutcome records a pipeline outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.PipelineOutcomes.WithLabelValues(outcome).Inc()
	}
}

// ObservePipelineLatency records the duration of a computed valuation.
func (m *Metrics) ObservePipelineLatency(d time.Duration) {
	if m != nil {
		m.PipelineLatency.Observe(d.Seconds())
	}
}

// IncrementShared records a caller that joined an in-flight computation.
func (m *Metrics) IncrementShared() {
	if m != nil {
		m.SharedFlights.Inc()
	}
}

// IncrementCooldown records a cooldown armed for source.
func (m *Metrics) IncrementCooldown(source string) {
	if m != nil {
		m.CooldownsArmed.WithLabelValues(source).Inc()
	}
}
