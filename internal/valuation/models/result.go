package models

import (
	"errors"
	"fmt"
	"slices"
)

// ResultKind tags which variant of a SourceResult is populated.
type ResultKind string

const (
	KindObservationSet ResultKind = "observation_set"
	KindDirectEstimate ResultKind = "direct_estimate"
)

var errMalformedResult = errors.New("malformed source result")

// DirectEstimate is a finished valuation reported by a source that does its own
// statistics, such as a price guide or the remote pricing function.
type DirectEstimate struct {
	MarketValue float64
	Confidence  float64
	DataPoints  int
	PriceRange  *PriceRange
	Category    string
	Note        string
	// RecentSales are display-only sales the source chose to pass along.
	RecentSales []Observation
}

// SourceResult is what one adapter produced for one query. Exactly one of
// Observations or Direct is populated, selected by Kind.
type SourceResult struct {
	Kind         ResultKind
	Source       string
	Observations []Observation
	Direct       *DirectEstimate
}

// NewObservationSet builds an observation-set result. The slice is copied.
func NewObservationSet(source string, obs []Observation) *SourceResult {
	return &SourceResult{
		Kind:         KindObservationSet,
		Source:       source,
		Observations: slices.Clone(obs),
	}
}

// NewDirectEstimate builds a direct-estimate result.
func NewDirectEstimate(source string, d DirectEstimate) *SourceResult {
	d.RecentSales = slices.Clone(d.RecentSales)
	if d.PriceRange != nil {
		r := *d.PriceRange
		d.PriceRange = &r
	}
	return &SourceResult{
		Kind:   KindDirectEstimate,
		Source: source,
		Direct: &d,
	}
}

// Empty reports whether the result carries nothing usable.
func (r *SourceResult) Empty() bool {
	if r == nil {
		return true
	}
	switch r.Kind {
	case KindObservationSet:
		return len(r.Observations) == 0
	case KindDirectEstimate:
		return r.Direct == nil || r.Direct.MarketValue <= 0
	default:
		return true
	}
}

// Validate checks that exactly one variant is populated and matches Kind.
func (r *SourceResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil", errMalformedResult)
	}
	switch r.Kind {
	case KindObservationSet:
		if r.Direct != nil {
			return fmt.Errorf("%w: observation set from %s carries a direct estimate", errMalformedResult, r.Source)
		}
	case KindDirectEstimate:
		if r.Direct == nil {
			return fmt.Errorf("%w: direct estimate from %s is missing", errMalformedResult, r.Source)
		}
		if len(r.Observations) > 0 {
			return fmt.Errorf("%w: direct estimate from %s carries observations", errMalformedResult, r.Source)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q from %s", errMalformedResult, r.Kind, r.Source)
	}
	return nil
}
