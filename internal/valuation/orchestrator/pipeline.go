package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/normalize"
	"pawnval/internal/valuation/sources"
)

var errRaceLost = errors.New("another source already answered")

// collect walks the eligible sources for q and returns the batches to
// estimate from, or ErrNoData when nothing usable came back. penalty scales
// the weight of every batch it returns.
func (o *Orchestrator) collect(ctx context.Context, q models.Query, penalty float64) ([]normalize.Batch, error) {
	eligible := o.eligible(ctx)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: every source is cooling down", ErrNoData)
	}

	next := 0
	if o.policy.RaceTopN > 1 && !o.policy.Blend {
		n := min(o.policy.RaceTopN, len(eligible))
		if b, ok := o.race(ctx, q, eligible[:n], penalty); ok {
			return []normalize.Batch{b}, nil
		}
		next = n
	}

	var batches []normalize.Batch
	for _, src := range eligible[next:] {
		if ctx.Err() != nil {
			o.logger.WarnContext(ctx, "query deadline reached before trying source",
				"query", q.String(), "source", src.Name())
			break
		}
		b, ok := o.attempt(ctx, src, q, penalty)
		if !ok {
			continue
		}
		if b.Synthetic() && b.Direct.Confidence >= o.policy.ShortCircuitConfidence {
			o.logger.DebugContext(ctx, "authoritative estimate, skipping remaining sources",
				"query", q.String(), "source", b.Source, "confidence", b.Direct.Confidence)
			return []normalize.Batch{b}, nil
		}
		batches = append(batches, b)
		if !o.policy.Blend {
			return batches, nil
		}
	}

	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: %d sources exhausted for %q", ErrNoData, len(eligible), q.String())
	}
	return batches, nil
}

func (o *Orchestrator) eligible(ctx context.Context) []sources.Source {
	out := make([]sources.Source, 0, len(o.sources))
	for _, src := range o.sources {
		if left := o.cooldowns.remaining(src.Name()); left > 0 {
			o.logger.DebugContext(ctx, "skipping source during cooldown",
				"source", src.Name(), "remaining_ms", left.Milliseconds())
			o.metrics.ObserveSourceAttempt(src.Name(), "cooling_down", 0)
			continue
		}
		out = append(out, src)
	}
	return out
}

// race runs srcs concurrently and keeps the first usable batch. Losers are
// cancelled and waited for before returning; their results are discarded.
func (o *Orchestrator) race(ctx context.Context, q models.Query, srcs []sources.Source, penalty float64) (normalize.Batch, bool) {
	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	won := make(chan normalize.Batch, 1)
	var g errgroup.Group
	for _, src := range srcs {
		g.Go(func() error {
			b, ok := o.attempt(rctx, src, q, penalty)
			if !ok {
				return nil
			}
			select {
			case won <- b:
				cancel(errRaceLost)
			default:
			}
			return nil
		})
	}
	_ = g.Wait()

	select {
	case b := <-won:
		return b, true
	default:
		return normalize.Batch{}, false
	}
}

// attempt calls one source under its own timeout and turns the outcome into a
// weighted batch. Failures are classified, logged and absorbed here.
func (o *Orchestrator) attempt(ctx context.Context, src sources.Source, q models.Query, penalty float64) (normalize.Batch, bool) {
	name := src.Name()
	actx, cancel := context.WithTimeout(ctx, o.policy.SourceTimeout)
	defer cancel()

	actx, span := o.tracer.Start(actx, "valuation.source", trace.WithAttributes(
		attribute.String("valuation.source", name),
		attribute.String("valuation.query", q.String()),
	))
	defer span.End()

	start := time.Now()
	res, err := src.Fetch(actx, q)
	elapsed := time.Since(start)

	var b normalize.Batch
	if err == nil {
		b, err = o.toBatch(name, res)
	}
	if err != nil {
		category := sources.CategoryOf(err)
		// A racer that lost still arms its cooldown when it reported a 429.
		if category != sources.CategoryRateLimited && errors.Is(context.Cause(ctx), errRaceLost) {
			o.metrics.ObserveSourceAttempt(name, "cancelled", elapsed)
			return normalize.Batch{}, false
		}
		if actx.Err() != nil && category != sources.CategoryRateLimited {
			category = sources.CategoryTimeout
		}
		span.SetStatus(codes.Error, string(category))
		o.metrics.ObserveSourceAttempt(name, string(category), elapsed)
		o.absorb(ctx, name, q, category, err, elapsed)
		return normalize.Batch{}, false
	}

	if b.Source == "" {
		b.Source = name
	}
	b.Weight *= o.weight(name) * penalty
	o.metrics.ObserveSourceAttempt(name, "ok", elapsed)
	o.logger.DebugContext(ctx, "source answered",
		"source", name,
		"query", q.String(),
		"observations", len(b.Observations),
		"duration_ms", elapsed.Milliseconds(),
	)
	return b, true
}

func (o *Orchestrator) toBatch(name string, res *models.SourceResult) (normalize.Batch, error) {
	if res.Empty() {
		return normalize.Batch{}, sources.Empty(name, "no results")
	}
	b, err := o.normalizer.Normalize(res)
	if err != nil {
		return normalize.Batch{}, sources.NewSourceError(sources.CategoryFatal, name, "malformed result", err)
	}
	if b.Empty() {
		return normalize.Batch{}, sources.Empty(name, "no plausible prices")
	}
	return b, nil
}

func (o *Orchestrator) absorb(ctx context.Context, name string, q models.Query, category sources.Category, err error, elapsed time.Duration) {
	attrs := []any{
		"source", name,
		"query", q.String(),
		"category", string(category),
		"duration_ms", elapsed.Milliseconds(),
	}
	switch category {
	case sources.CategoryEmptyResult:
		o.logger.DebugContext(ctx, "source returned nothing", attrs...)
	case sources.CategoryRateLimited:
		wait := sources.RetryAfterOf(err)
		if wait <= 0 {
			wait = o.policy.RateLimitCooldown
		}
		until := o.cooldowns.arm(name, wait)
		o.metrics.IncrementCooldown(name)
		o.logger.WarnContext(ctx, "source rate limited, cooling down",
			append(attrs, "until", until, "error", err)...)
	case sources.CategoryFatal:
		o.logger.ErrorContext(ctx, "source failed", append(attrs, "error", err)...)
	default:
		o.logger.WarnContext(ctx, "source unavailable, falling back", append(attrs, "error", err)...)
	}
}

func (o *Orchestrator) weight(name string) float64 {
	if w, ok := o.weights[name]; ok {
		return w
	}
	return 1
}
