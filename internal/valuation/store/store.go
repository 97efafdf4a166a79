// Package store keeps the history of computed valuations.
package store

import (
	"context"
	"time"

	"pawnval/internal/valuation/models"
)

// DefaultRecentLimit bounds Recent when the caller passes no limit.
const DefaultRecentLimit = 20

// Record is one persisted valuation.
type Record struct {
	ID             int64             `json:"id"`
	Query          models.Query      `json:"query"`
	MarketValue    float64           `json:"marketValue"`
	PawnValue      float64           `json:"pawnValue"`
	PawnPercentage float64           `json:"pawnPercentage"`
	Confidence     float64           `json:"confidence"`
	PriceRange     models.PriceRange `json:"priceRange"`
	DataPoints     int               `json:"dataPoints"`
	Source         string            `json:"source"`
	Sources        []string          `json:"sources"`
	ComputedAt     time.Time         `json:"computedAt"`
}

// Recorder persists freshly computed estimates and reads them back.
type Recorder interface {
	Record(ctx context.Context, est *models.Estimate) error
	Recent(ctx context.Context, q models.Query, limit int) ([]Record, error)
}

func fromEstimate(est *models.Estimate) Record {
	return Record{
		Query:          est.Query,
		MarketValue:    est.MarketValue,
		PawnValue:      est.PawnValue,
		PawnPercentage: est.PawnPercentage,
		Confidence:     est.Confidence,
		PriceRange:     est.PriceRange,
		DataPoints:     est.DataPoints,
		Source:         est.Source,
		Sources:        append([]string(nil), est.Sources...),
		ComputedAt:     est.Timestamp,
	}
}
