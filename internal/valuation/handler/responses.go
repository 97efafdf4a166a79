package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"pawnval/internal/valuation/models"
)

// ValuationResponse is the success envelope of the valuation endpoints.
type ValuationResponse struct {
	Success bool          `json:"success"`
	Data    ValuationData `json:"data"`
	Message string        `json:"message,omitempty"`
}

// ValuationData is one estimate as seen by clients.
type ValuationData struct {
	Query          string         `json:"query"`
	MarketValue    float64        `json:"marketValue"`
	PawnValue      float64        `json:"pawnValue"`
	PawnPercentage float64        `json:"pawnPercentage"`
	Confidence     float64        `json:"confidence"`
	DataPoints     int            `json:"dataPoints"`
	PriceRange     PriceRange     `json:"priceRange"`
	RecentSales    []SaleResponse `json:"recentSales"`
	Source         string         `json:"source"`
	Sources        []string       `json:"sources"`
	Timestamp      string         `json:"timestamp"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type SaleResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	SoldDate  string  `json:"soldDate,omitempty"`
	Condition string  `json:"condition"`
	Source    string  `json:"source"`
	URL       string  `json:"url,omitempty"`
}

// FromEstimate converts an estimate into the response envelope. Money is
// rounded to cents and confidence to three decimals.
func FromEstimate(est *models.Estimate) *ValuationResponse {
	data := ValuationData{
		Query:          est.Query.String(),
		MarketValue:    cents(est.MarketValue),
		PawnValue:      cents(est.PawnValue),
		PawnPercentage: round(est.PawnPercentage, 4),
		Confidence:     round(est.Confidence, 3),
		DataPoints:     est.DataPoints,
		PriceRange:     PriceRange{Min: cents(est.PriceRange.Min), Max: cents(est.PriceRange.Max)},
		RecentSales:    make([]SaleResponse, 0, len(est.RecentSales)),
		Source:         est.Source,
		Sources:        est.Sources,
		Timestamp:      est.Timestamp.UTC().Format(time.RFC3339),
	}
	if data.Sources == nil {
		data.Sources = []string{}
	}
	for _, o := range est.RecentSales {
		s := SaleResponse{
			ID:        o.ID,
			Title:     o.Title,
			Price:     cents(o.Price),
			Condition: string(o.Condition),
			Source:    o.Source,
			URL:       o.URL,
		}
		if !o.SoldAt.IsZero() {
			s.SoldDate = o.SoldAt.UTC().Format(time.RFC3339)
		}
		data.RecentSales = append(data.RecentSales, s)
	}
	return &ValuationResponse{Success: true, Data: data}
}

func cents(v float64) float64 {
	return round(v, 2)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
