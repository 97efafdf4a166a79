// Package normalize reshapes heterogeneous source results into observation
// batches the estimator can fold together. It filters and reshapes only; it
// never invents prices.
package normalize

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"pawnval/internal/valuation/models"
)

const (
	// DefaultMaxPrice is the hard ceiling above which a price is treated as noise.
	DefaultMaxPrice = 100_000.0
	// DefaultSoftCeilingMultiple drops prices this many times above the sample median.
	DefaultSoftCeilingMultiple = 20.0
)

// Batch is one source's contribution after normalization.
type Batch struct {
	Source       string
	Observations []models.Observation
	// Direct is set when the batch was synthesized from a direct estimate; its
	// single observation then stands for the whole estimate.
	Direct *models.DirectEstimate
	// Weight scales the confidence of anything built from this batch. It starts
	// as 1 for observation sets and as the self-reported confidence for direct
	// estimates; the orchestrator multiplies in source quality.
	Weight float64
}

// Empty reports whether the batch carries no observations.
func (b Batch) Empty() bool {
	return len(b.Observations) == 0
}

// Synthetic reports whether the batch stands for a direct estimate rather than
// individual sales.
func (b Batch) Synthetic() bool {
	return b.Direct != nil
}

// Normalizer filters implausible prices and duplicate listings.
type Normalizer struct {
	maxPrice            float64
	softCeilingMultiple float64
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMaxPrice sets the hard price ceiling. Zero disables it.
func WithMaxPrice(p float64) Option {
	return func(n *Normalizer) {
		n.maxPrice = p
	}
}

// WithSoftCeilingMultiple sets how far above the sample median a price may sit.
// Zero disables the soft ceiling.
func WithSoftCeilingMultiple(m float64) Option {
	return func(n *Normalizer) {
		n.softCeilingMultiple = m
	}
}

// New creates a Normalizer with the default ceilings.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		maxPrice:            DefaultMaxPrice,
		softCeilingMultiple: DefaultSoftCeilingMultiple,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts one source result into a batch. It fails only for results
// that violate the variant contract.
func (n *Normalizer) Normalize(r *models.SourceResult) (Batch, error) {
	if err := r.Validate(); err != nil {
		return Batch{}, fmt.Errorf("normalize: %w", err)
	}

	switch r.Kind {
	case models.KindDirectEstimate:
		return n.fromDirect(r.Source, r.Direct), nil
	case models.KindObservationSet:
		return n.fromObservations(r.Source, r.Observations), nil
	default:
		return Batch{}, fmt.Errorf("normalize: unhandled result kind %q", r.Kind)
	}
}

func (n *Normalizer) fromDirect(source string, d *models.DirectEstimate) Batch {
	b := Batch{Source: source, Direct: d, Weight: clamp01(d.Confidence)}
	if !n.plausible(d.MarketValue) {
		return b
	}
	title := d.Note
	if title == "" {
		title = d.Category
	}
	b.Observations = []models.Observation{{
		Price:     d.MarketValue,
		Title:     title,
		Condition: models.ConditionUnknown,
		Source:    source,
	}}
	return b
}

func (n *Normalizer) fromObservations(source string, in []models.Observation) Batch {
	kept := make([]models.Observation, 0, len(in))
	for _, o := range in {
		if !n.plausible(o.Price) {
			continue
		}
		kept = append(kept, withDefaults(o, source))
	}

	if n.softCeilingMultiple > 0 && len(kept) > 0 {
		prices := make([]float64, len(kept))
		for i, o := range kept {
			prices[i] = o.Price
		}
		ceiling := Median(prices) * n.softCeilingMultiple
		kept = slices.DeleteFunc(kept, func(o models.Observation) bool {
			return o.Price > ceiling
		})
	}

	return Batch{Source: source, Observations: dedupe(kept), Weight: 1}
}

func (n *Normalizer) plausible(price float64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return false
	}
	return n.maxPrice <= 0 || price <= n.maxPrice
}

func withDefaults(o models.Observation, source string) models.Observation {
	if o.Source == "" {
		o.Source = source
	}
	if o.Condition == "" {
		o.Condition = models.ConditionUnknown
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return o
}

type dedupeKey struct {
	title  string
	price  float64
	soldAt int64
}

// dedupe drops repeated (title, price, soldAt) triples, keeping the first.
func dedupe(obs []models.Observation) []models.Observation {
	seen := make(map[dedupeKey]struct{}, len(obs))
	out := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		k := dedupeKey{
			title:  strings.ToLower(strings.Join(strings.Fields(o.Title), " ")),
			price:  o.Price,
			soldAt: unixOrZero(o.SoldAt),
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Median returns the median of values, or 0 for an empty slice. The input is
// not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := slices.Clone(values)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
