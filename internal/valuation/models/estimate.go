package models

import (
	"math"
	"slices"
	"time"
)

// SourceBlended labels an estimate built from more than one source.
const SourceBlended = "blended"

// DefaultPawnPercentage is the loan-to-value ratio used when a caller has no
// tenant-specific ratio.
const DefaultPawnPercentage = 0.30

// Estimate is a finished valuation for one query. Estimates are shared through
// the cache and must be treated as read-only; use WithPawnPercentage to derive
// a caller-specific copy.
type Estimate struct {
	Query          Query
	MarketValue    float64
	PawnValue      float64
	PawnPercentage float64
	Confidence     float64
	PriceRange     PriceRange
	DataPoints     int
	RecentSales    []Observation
	Source         string
	Sources        []string
	Timestamp      time.Time
}

// ClampPawnPercentage bounds a pawn ratio to [0,1].
func ClampPawnPercentage(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// WithPawnPercentage returns a copy of the estimate whose pawn value is derived
// from pct. Market statistics and the timestamp are unchanged.
func (e *Estimate) WithPawnPercentage(pct float64) *Estimate {
	if e == nil {
		return nil
	}
	out := *e
	out.RecentSales = slices.Clone(e.RecentSales)
	out.Sources = slices.Clone(e.Sources)
	out.PawnPercentage = ClampPawnPercentage(pct)
	out.PawnValue = out.MarketValue * out.PawnPercentage
	return &out
}
