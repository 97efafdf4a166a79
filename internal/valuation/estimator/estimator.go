// Package estimator folds normalized observations into one valuation: robust
// outlier rejection around the median, a mean market value, the surviving
// price range and a confidence score.
package estimator

import (
	"context"
	"errors"
	"math"
	"slices"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/normalize"
	"pawnval/pkg/requestcontext"
)

// ErrNoData is returned when there is nothing to estimate from. The pipeline
// never reports a zero-valued estimate in its place.
var ErrNoData = errors.New("no data")

// Config holds the tunable estimation policy.
type Config struct {
	// MADMultiplier is how many median absolute deviations an observation may
	// sit from the median before it is rejected.
	MADMultiplier float64

	ConfidenceBase              float64
	ConfidencePerPoint          float64
	ConfidencePointCap          int
	ConfidenceDispersionPenalty float64

	// RecentSalesLimit caps the sales echoed back with an estimate.
	RecentSalesLimit int
}

// DefaultConfig returns the reference policy.
func DefaultConfig() Config {
	return Config{
		MADMultiplier:               3,
		ConfidenceBase:              0.3,
		ConfidencePerPoint:          0.07,
		ConfidencePointCap:          10,
		ConfidenceDispersionPenalty: 0.5,
		RecentSalesLimit:            10,
	}
}

// Estimator is stateless and safe for concurrent use.
type Estimator struct {
	cfg Config
}

// New creates an Estimator. Start from DefaultConfig and override; a zero
// multiplier, point cap or sales limit falls back to the default.
func New(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.MADMultiplier <= 0 {
		cfg.MADMultiplier = def.MADMultiplier
	}
	if cfg.ConfidencePointCap <= 0 {
		cfg.ConfidencePointCap = def.ConfidencePointCap
	}
	if cfg.RecentSalesLimit <= 0 {
		cfg.RecentSalesLimit = def.RecentSalesLimit
	}
	return &Estimator{cfg: cfg}
}

// Config returns the effective policy.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Input is everything one estimation needs.
type Input struct {
	Query          models.Query
	Batches        []normalize.Batch
	PawnPercentage float64
}

type sample struct {
	obs    models.Observation
	weight float64
	direct *models.DirectEstimate
}

// Estimate computes a valuation from the given batches. The timestamp is the
// request time carried by ctx.
func (e *Estimator) Estimate(ctx context.Context, in Input) (*models.Estimate, error) {
	var samples []sample
	var nonEmpty []normalize.Batch
	for _, b := range in.Batches {
		if b.Empty() {
			continue
		}
		nonEmpty = append(nonEmpty, b)
		for _, o := range b.Observations {
			samples = append(samples, sample{obs: o, weight: b.Weight, direct: b.Direct})
		}
	}
	if len(samples) == 0 {
		return nil, ErrNoData
	}

	var est *models.Estimate
	if len(nonEmpty) == 1 && nonEmpty[0].Synthetic() {
		est = e.fromDirect(nonEmpty[0])
	} else {
		est = e.fromSamples(samples)
	}

	pct := models.ClampPawnPercentage(in.PawnPercentage)
	est.Query = in.Query
	est.PawnPercentage = pct
	est.PawnValue = est.MarketValue * pct
	est.Timestamp = requestcontext.Now(ctx)
	return est, nil
}

func (e *Estimator) fromDirect(b normalize.Batch) *models.Estimate {
	d := b.Direct
	rng := models.PriceRange{Min: d.MarketValue, Max: d.MarketValue}
	if d.PriceRange != nil && d.PriceRange.Min > 0 && d.PriceRange.Min <= d.PriceRange.Max {
		rng = d.PriceRange.Widen(d.MarketValue)
	}
	return &models.Estimate{
		MarketValue: d.MarketValue,
		Confidence:  clamp01(b.Weight),
		PriceRange:  rng,
		DataPoints:  max(d.DataPoints, 1),
		RecentSales: e.recent(d.RecentSales),
		Source:      b.Source,
		Sources:     []string{b.Source},
	}
}

func (e *Estimator) fromSamples(samples []sample) *models.Estimate {
	kept := e.rejectOutliers(samples)

	var sum, weightSum float64
	dataPoints := 0
	rng := models.PriceRange{Min: math.Inf(1), Max: math.Inf(-1)}
	var sales []models.Observation
	var sources []string
	for _, s := range kept {
		p := s.obs.Price
		sum += p
		weightSum += s.weight
		rng.Min = math.Min(rng.Min, p)
		rng.Max = math.Max(rng.Max, p)
		if s.direct != nil {
			dataPoints += max(s.direct.DataPoints, 1)
			sales = append(sales, s.direct.RecentSales...)
		} else {
			dataPoints++
			sales = append(sales, s.obs)
		}
		if !slices.Contains(sources, s.obs.Source) {
			sources = append(sources, s.obs.Source)
		}
	}

	n := float64(len(kept))
	mean := sum / n
	// Float summation can land a hair outside the observed range.
	market := math.Min(math.Max(mean, rng.Min), rng.Max)

	var sq float64
	for _, s := range kept {
		d := s.obs.Price - mean
		sq += d * d
	}
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(sq/n) / mean
	}

	source := sources[0]
	if len(sources) > 1 {
		source = models.SourceBlended
	}

	return &models.Estimate{
		MarketValue: market,
		Confidence:  clamp01(e.Confidence(dataPoints, cv) * (weightSum / n)),
		PriceRange:  rng,
		DataPoints:  dataPoints,
		RecentSales: e.recent(sales),
		Source:      source,
		Sources:     sources,
	}
}

// Confidence scores a sample of n points with coefficient of variation cv. It
// never decreases as n grows and never increases as cv grows.
func (e *Estimator) Confidence(n int, cv float64) float64 {
	if math.IsNaN(cv) || cv < 0 {
		cv = 0
	}
	points := float64(min(max(n, 0), e.cfg.ConfidencePointCap))
	c := e.cfg.ConfidenceBase +
		e.cfg.ConfidencePerPoint*points -
		e.cfg.ConfidenceDispersionPenalty*math.Min(cv, 1)
	return clamp01(c)
}

// rejectOutliers drops samples further than MADMultiplier x MAD from the
// median. When more than half the sample shares one price the MAD is zero, so
// the mean absolute deviation around the median is used instead. Nothing is
// dropped if fewer than two samples would survive.
func (e *Estimator) rejectOutliers(samples []sample) []sample {
	if len(samples) < 3 {
		return samples
	}

	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.obs.Price
	}
	med := normalize.Median(prices)

	devs := make([]float64, len(samples))
	var devSum float64
	for i, p := range prices {
		devs[i] = math.Abs(p - med)
		devSum += devs[i]
	}
	spread := normalize.Median(devs)
	if spread == 0 {
		spread = devSum / float64(len(devs))
	}
	if spread == 0 {
		return samples
	}

	limit := e.cfg.MADMultiplier * spread
	kept := make([]sample, 0, len(samples))
	for i, s := range samples {
		if devs[i] <= limit {
			kept = append(kept, s)
		}
	}
	if len(kept) < 2 {
		return samples
	}
	return kept
}

// recent orders sales newest first, undated sales last, and truncates.
func (e *Estimator) recent(sales []models.Observation) []models.Observation {
	if len(sales) == 0 {
		return nil
	}
	out := slices.Clone(sales)
	slices.SortStableFunc(out, func(a, b models.Observation) int {
		switch {
		case a.SoldAt.IsZero() && b.SoldAt.IsZero():
			return 0
		case a.SoldAt.IsZero():
			return 1
		case b.SoldAt.IsZero():
			return -1
		default:
			return b.SoldAt.Compare(a.SoldAt)
		}
	})
	if len(out) > e.cfg.RecentSalesLimit {
		out = out[:e.cfg.RecentSalesLimit]
	}
	return out
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
