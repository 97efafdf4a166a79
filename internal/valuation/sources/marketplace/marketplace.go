// Package marketplace scrapes completed sold listings from a public marketplace
// search page and returns them as raw observations.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/sources"
	"pawnval/pkg/platform/httpclient"
)

// Name is the source label of the marketplace scraper.
const Name = "marketplace"

const (
	DefaultMaxResults      = 25
	DefaultMinListingPrice = 5.0
	maxPageBytes           = 8 << 20
)

// Getter issues an idempotent GET.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

// Source scrapes sold listings.
type Source struct {
	baseURL    string
	client     Getter
	maxResults int
	minPrice   float64
	clock      func() time.Time
	logger     *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

func WithClient(c Getter) Option {
	return func(s *Source) {
		s.client = c
	}
}

// WithMaxResults caps the number of observations returned per query.
func WithMaxResults(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithMinListingPrice drops listings priced below p; these are almost always
// accessories or placeholders.
func WithMinListingPrice(p float64) Option {
	return func(s *Source) {
		if p >= 0 {
			s.minPrice = p
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Source) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// New creates a Source searching baseURL.
func New(baseURL string, opts ...Option) (*Source, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("marketplace base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid marketplace base URL: %w", err)
	}
	s := &Source{
		baseURL:    baseURL,
		client:     httpclient.New(),
		maxResults: DefaultMaxResults,
		minPrice:   DefaultMinListingPrice,
		clock:      time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Name() string { return Name }

// Fetch runs one sold-listings search for q.
func (s *Source) Fetch(ctx context.Context, q models.Query) (*models.SourceResult, error) {
	resp, err := s.client.Get(ctx, s.searchURL(q), http.Header{
		"Accept":          []string{"text/html,application/xhtml+xml"},
		"Accept-Language": []string{"en-US,en;q=0.9"},
	})
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, sources.RateLimited(Name, sources.ParseRetryAfter(resp.Header, s.clock()),
			fmt.Sprintf("blocked with status %d", resp.StatusCode))
	}
	if cat := sources.CategoryForStatus(resp.StatusCode); cat != "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, sources.NewSourceError(cat, Name, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	listings, err := parseListings(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, sources.NewSourceError(sources.CategoryTimeout, Name, "reading page timed out", err)
		}
		return nil, sources.NewSourceError(sources.CategoryFatal, Name, "parse page", err)
	}

	obs := s.observations(listings)
	s.logger.DebugContext(ctx, "marketplace listings parsed",
		"query", q.String(),
		"cards", len(listings),
		"kept", len(obs),
	)
	if len(obs) == 0 {
		return nil, sources.Empty(Name, "no sold listings")
	}
	return models.NewObservationSet(Name, obs), nil
}

func (s *Source) searchURL(q models.Query) string {
	v := url.Values{}
	v.Set("_nkw", q.String())
	v.Set("LH_Sold", "1")
	v.Set("LH_Complete", "1")
	v.Set("_sop", "13")
	v.Set("_ipg", strconv.Itoa(s.maxResults))
	return s.baseURL + "?" + v.Encode()
}

func (s *Source) observations(listings []listing) []models.Observation {
	now := s.clock()
	out := make([]models.Observation, 0, min(len(listings), s.maxResults))
	for _, l := range listings {
		if len(out) == s.maxResults {
			break
		}
		if isPlaceholder(l.Title) {
			continue
		}
		price, ok := parsePrice(l.PriceText)
		if !ok || price < s.minPrice {
			continue
		}
		out = append(out, models.Observation{
			ID:        l.ID,
			Title:     l.Title,
			Price:     price,
			SoldAt:    parseSoldDate(l.DateText, now),
			Condition: inferCondition(l.Title),
			Source:    Name,
			URL:       l.URL,
		})
	}
	return out
}

func classifyTransport(err error) error {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return sources.NewSourceError(sources.CategoryForStatus(se.StatusCode), Name, se.Error(), err)
	}
	return sources.Classify(Name, err)
}
