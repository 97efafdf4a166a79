// Package remote adapts the hosted pricing function: a single HTTP endpoint that
// accepts an item name and answers with a finished valuation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/sources"
	"pawnval/pkg/platform/httpclient"
)

// Name is the source label of the remote pricing function.
const Name = "remote"

const maxBodyBytes = 1 << 20

// Doer sends one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source calls the remote pricing function.
type Source struct {
	endpoint string
	apiKey   string
	client   Doer
	clock    func() time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithAPIKey sends the key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(s *Source) {
		s.apiKey = key
	}
}

// WithClient replaces the HTTP client.
func WithClient(c Doer) Option {
	return func(s *Source) {
		s.client = c
	}
}

// WithClock injects the time source used to interpret Retry-After dates.
func WithClock(clock func() time.Time) Option {
	return func(s *Source) {
		s.clock = clock
	}
}

// New creates a Source posting to endpoint.
func New(endpoint string, opts ...Option) (*Source, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is required")
	}
	s := &Source{
		endpoint: endpoint,
		client:   httpclient.New(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Name() string { return Name }

type request struct {
	ItemName string `json:"itemName"`
}

type sale struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	SoldDate  string  `json:"soldDate"`
	Condition string  `json:"condition"`
	URL       string  `json:"url"`
}

type payload struct {
	MarketValue float64 `json:"marketValue"`
	Confidence  float64 `json:"confidence"`
	DataPoints  int     `json:"dataPoints"`
	PriceRange  *struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"priceRange"`
	RecentSales []sale `json:"recentSales"`
	Source      string `json:"source"`
	Note        string `json:"note"`
}

type response struct {
	Success bool     `json:"success"`
	Data    *payload `json:"data"`
	Error   string   `json:"error"`
	Message string   `json:"message"`
}

// Fetch posts the query and maps the answer onto a direct estimate.
func (s *Source) Fetch(ctx context.Context, q models.Query) (*models.SourceResult, error) {
	body, err := json.Marshal(request{ItemName: q.String()})
	if err != nil {
		return nil, sources.NewSourceError(sources.CategoryFatal, Name, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, sources.NewSourceError(sources.CategoryFatal, Name, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, sources.NewSourceError(sources.CategoryTimeout, Name, "request timed out", err)
		}
		return nil, sources.NewSourceError(sources.CategoryTransient, Name, "request failed", err)
	}
	defer resp.Body.Close()

	if cat := sources.CategoryForStatus(resp.StatusCode); cat != "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if cat == sources.CategoryRateLimited {
			return nil, sources.RateLimited(Name, sources.ParseRetryAfter(resp.Header, s.clock()), msg)
		}
		return nil, sources.NewSourceError(cat, Name, msg, nil)
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return nil, sources.NewSourceError(sources.CategoryTimeout, Name, "reading response timed out", err)
		}
		return nil, sources.NewSourceError(sources.CategoryFatal, Name, "decode response", err)
	}
	if !out.Success || out.Data == nil {
		msg := out.Message
		if msg == "" {
			msg = out.Error
		}
		if msg == "" {
			msg = "no valuation"
		}
		return nil, sources.Empty(Name, msg)
	}
	if out.Data.MarketValue <= 0 {
		return nil, sources.Empty(Name, "zero market value")
	}

	return models.NewDirectEstimate(Name, toDirect(out.Data)), nil
}

func toDirect(p *payload) models.DirectEstimate {
	d := models.DirectEstimate{
		MarketValue: p.MarketValue,
		Confidence:  p.Confidence,
		DataPoints:  p.DataPoints,
		Category:    p.Source,
		Note:        p.Note,
	}
	if p.PriceRange != nil && p.PriceRange.Max > 0 {
		d.PriceRange = &models.PriceRange{Min: p.PriceRange.Min, Max: p.PriceRange.Max}
	}
	for _, s := range p.RecentSales {
		if s.Price <= 0 {
			continue
		}
		o := models.Observation{
			ID:        s.ID,
			Title:     s.Title,
			Price:     s.Price,
			Condition: models.ParseCondition(s.Condition),
			Source:    Name,
			URL:       s.URL,
		}
		if t, err := time.Parse(time.RFC3339, s.SoldDate); err == nil {
			o.SoldAt = t
		} else if t, err := time.Parse(time.DateOnly, s.SoldDate); err == nil {
			o.SoldAt = t
		}
		d.RecentSales = append(d.RecentSales, o)
	}
	return d
}
