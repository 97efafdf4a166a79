// Package orchestrator runs the valuation pipeline: cache check, ordered source
// fallback with per-source timeouts and rate-limit cooldowns, normalization and
// estimation, then caching and fan-out of the finished estimate.
//
// Concurrent requests for the same query share one computation. The shared
// computation is detached from any single caller's cancellation and bounded by
// the query deadline instead; each caller stops waiting when its own context
// ends.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"pawnval/internal/valuation/cache"
	"pawnval/internal/valuation/estimator"
	"pawnval/internal/valuation/metrics"
	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/normalize"
	"pawnval/internal/valuation/sources"
)

// ErrNoData is returned when every source was exhausted without a usable result.
var ErrNoData = estimator.ErrNoData

// HistoryRecorder persists freshly computed estimates.
type HistoryRecorder interface {
	Record(ctx context.Context, est *models.Estimate) error
}

// EventPublisher announces freshly computed estimates.
type EventPublisher interface {
	Publish(ctx context.Context, est *models.Estimate) error
}

// Policy is the fallback policy of a deployment.
type Policy struct {
	// SourceTimeout bounds each source attempt.
	SourceTimeout time.Duration
	// QueryDeadline bounds a whole computation, including alternate terms.
	QueryDeadline time.Duration
	// RateLimitCooldown is used when a rate-limited source gave no Retry-After.
	RateLimitCooldown time.Duration
	// ShortCircuitConfidence makes a direct estimate at or above it authoritative.
	ShortCircuitConfidence float64
	// Blend consults every eligible source and unions their observations
	// instead of stopping at the first usable result.
	Blend bool
	// RaceTopN > 1 races the first N eligible sources and keeps the first
	// usable result. Ignored when Blend is set.
	RaceTopN int
	// AlternateTerms is how many broader phrasings to try after exhaustion.
	AlternateTerms int
	// AlternatePenalty scales confidence of estimates found via an alternate term.
	AlternatePenalty float64
	// PawnPercentage is the ratio cached estimates are computed with.
	PawnPercentage float64
}

// DefaultPolicy returns the reference fallback policy.
func DefaultPolicy() Policy {
	return Policy{
		SourceTimeout:          5 * time.Second,
		QueryDeadline:          20 * time.Second,
		RateLimitCooldown:      time.Minute,
		ShortCircuitConfidence: 0.9,
		AlternateTerms:         3,
		AlternatePenalty:       0.8,
		PawnPercentage:         models.DefaultPawnPercentage,
	}
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	sources    []sources.Source
	weights    map[string]float64
	policy     Policy
	normalizer *normalize.Normalizer
	estimator  *estimator.Estimator
	cache      cache.Cache
	history    HistoryRecorder
	publisher  EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	clock      func() time.Time
	cooldowns  *cooldowns
	flights    singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithPolicy replaces the default fallback policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) {
		o.normalizer = n
	}
}

// WithEstimator replaces the default estimator.
func WithEstimator(e *estimator.Estimator) Option {
	return func(o *Orchestrator) {
		o.estimator = e
	}
}

// WithSourceWeights scales confidence per source; unlisted sources weigh 1.
func WithSourceWeights(w map[string]float64) Option {
	return func(o *Orchestrator) {
		for k, v := range w {
			o.weights[k] = v
		}
	}
}

// WithHistory records every freshly computed estimate.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithPublisher announces every freshly computed estimate.
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithClock injects the time source used for cooldowns.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithTracer overrides the tracer obtained from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New creates an Orchestrator trying srcs in the given priority order.
func New(srcs []sources.Source, c cache.Cache, opts ...Option) (*Orchestrator, error) {
	if len(srcs) == 0 {
		return nil, fmt.Errorf("orchestrator requires at least one source")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	seen := make(map[string]struct{}, len(srcs))
	for _, s := range srcs {
		if s == nil {
			return nil, fmt.Errorf("source is required")
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate source %q", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}

	o := &Orchestrator{
		sources:    srcs,
		weights:    make(map[string]float64),
		policy:     DefaultPolicy(),
		normalizer: normalize.New(),
		estimator:  estimator.New(estimator.DefaultConfig()),
		cache:      c,
		logger:     slog.Default(),
		tracer:     otel.Tracer("pawnval/internal/valuation/orchestrator"),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cooldowns = newCooldowns(o.clock)
	if err := o.policy.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (p Policy) validate() error {
	if p.SourceTimeout <= 0 {
		return fmt.Errorf("source timeout must be positive")
	}
	if p.QueryDeadline <= 0 {
		return fmt.Errorf("query deadline must be positive")
	}
	if p.RateLimitCooldown <= 0 {
		return fmt.Errorf("rate limit cooldown must be positive")
	}
	if p.AlternatePenalty < 0 || p.AlternatePenalty > 1 {
		return fmt.Errorf("alternate penalty must be within [0,1]")
	}
	return nil
}

// Estimate returns the valuation for q with the pawn value derived from
// pawnPercentage. Only models.ErrInvalidQuery, ErrNoData and the caller's own
// context errors are returned; source failures drive fallback and are absorbed.
func (o *Orchestrator) Estimate(ctx context.Context, q models.Query, pawnPercentage float64) (*models.Estimate, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrInvalidQuery)
	}

	if est, ok := o.cached(ctx, q); ok {
		o.metrics.IncrementOutcome("cache_hit")
		return est.WithPawnPercentage(pawnPercentage), nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := o.flights.DoChan(q.String(), func() (any, error) {
		return o.compute(flightCtx, q)
	})

	select {
	case res := <-ch:
		if res.Shared {
			o.metrics.IncrementShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Estimate).WithPawnPercentage(pawnPercentage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CooldownRemaining reports how long source is still being skipped.
func (o *Orchestrator) CooldownRemaining(source string) time.Duration {
	return o.cooldowns.remaining(source)
}

func (o *Orchestrator) cached(ctx context.Context, q models.Query) (*models.Estimate, bool) {
	est, err := o.cache.Get(ctx, q)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			o.logger.WarnContext(ctx, "cache read failed", "query", q.String(), "error", err)
		}
		return nil, false
	}
	return est, true
}

func (o *Orchestrator) compute(ctx context.Context, q models.Query) (*models.Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, o.policy.QueryDeadline)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "valuation.compute", trace.WithAttributes(
		attribute.String("valuation.query", q.String()),
	))
	defer span.End()

	// Another flight may have finished between the caller's lookup and ours.
	if est, ok := o.cached(ctx, q); ok {
		return est, nil
	}

	start := time.Now()
	batches, err := o.collect(ctx, q, 1)
	if errors.Is(err, ErrNoData) {
		batches, err = o.tryAlternates(ctx, q, err)
	}
	if err != nil {
		o.metrics.IncrementOutcome("no_data")
		span.SetStatus(codes.Error, err.Error())
		o.logger.InfoContext(ctx, "no valuation available", "query", q.String(), "error", err)
		return nil, err
	}

	est, err := o.estimator.Estimate(ctx, estimator.Input{
		Query:          q,
		Batches:        batches,
		PawnPercentage: o.policy.PawnPercentage,
	})
	if err != nil {
		o.metrics.IncrementOutcome("no_data")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	o.metrics.IncrementOutcome("estimated")
	o.metrics.ObservePipelineLatency(time.Since(start))
	span.SetAttributes(
		attribute.String("valuation.source", est.Source),
		attribute.Int("valuation.data_points", est.DataPoints),
		attribute.Float64("valuation.confidence", est.Confidence),
	)
	o.logger.InfoContext(ctx, "valuation computed",
		"query", q.String(),
		"source", est.Source,
		"market_value", est.MarketValue,
		"confidence", est.Confidence,
		"data_points", est.DataPoints,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	o.store(ctx, q, est)
	return est, nil
}

func (o *Orchestrator) tryAlternates(ctx context.Context, q models.Query, cause error) ([]normalize.Batch, error) {
	for _, alt := range AlternateQueries(q, o.policy.AlternateTerms) {
		if ctx.Err() != nil {
			break
		}
		o.logger.DebugContext(ctx, "trying alternate search term", "query", q.String(), "alternate", alt.String())
		batches, err := o.collect(ctx, alt, o.policy.AlternatePenalty)
		if err == nil {
			o.logger.InfoContext(ctx, "alternate search term matched", "query", q.String(), "alternate", alt.String())
			return batches, nil
		}
	}
	return nil, cause
}

func (o *Orchestrator) store(ctx context.Context, q models.Query, est *models.Estimate) {
	if err := o.cache.Set(ctx, q, est); err != nil {
		o.logger.WarnContext(ctx, "cache write failed", "query", q.String(), "error", err)
	}
	if o.history != nil {
		if err := o.history.Record(ctx, est); err != nil {
			o.logger.WarnContext(ctx, "valuation history write failed", "query", q.String(), "error", err)
		}
	}
	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, est); err != nil {
			o.logger.WarnContext(ctx, "valuation event publish failed", "query", q.String(), "error", err)
		}
	}
}
