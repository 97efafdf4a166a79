// Package guides answers from curated category price guides. Each guide either
// recognizes the query and returns a finished estimate or passes.
package guides

import (
	"context"
	"log/slog"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/sources"
)

// Name is the source label of the price guides.
const Name = "guides"

// Guide is one category price guide.
type Guide interface {
	Category() string
	// Lookup reports ok=false when the query is outside the guide's category.
	Lookup(ctx context.Context, q models.Query) (est models.DirectEstimate, ok bool, err error)
}

// Source tries its guides in order; the first one that recognizes the query
// answers for the whole source.
type Source struct {
	guides []Guide
	logger *slog.Logger
}

type Option func(*Source)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// New creates a Source over guides, in priority order.
func New(guides []Guide, opts ...Option) *Source {
	s := &Source{guides: guides, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string { return Name }

func (s *Source) Fetch(ctx context.Context, q models.Query) (*models.SourceResult, error) {
	for _, g := range s.guides {
		if err := ctx.Err(); err != nil {
			return nil, sources.NewSourceError(sources.CategoryTimeout, Name, "lookup cancelled", err)
		}
		est, ok, err := g.Lookup(ctx, q)
		if err != nil {
			return nil, sources.Classify(Name, err)
		}
		if !ok {
			continue
		}
		if est.Category == "" {
			est.Category = g.Category()
		}
		s.logger.DebugContext(ctx, "price guide matched",
			"query", q.String(),
			"guide", g.Category(),
			"market_value", est.MarketValue,
		)
		return models.NewDirectEstimate(Name, est), nil
	}
	return nil, sources.Empty(Name, "no guide covers the query")
}

func spread(v, pct float64) *models.PriceRange {
	return &models.PriceRange{Min: v * (1 - pct), Max: v * (1 + pct)}
}
