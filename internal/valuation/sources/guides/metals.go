package guides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"pawnval/internal/valuation/sources"
	"pawnval/pkg/platform/httpclient"
)

// Getter issues an idempotent GET.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

// MetalsClient reads spot prices from a metals quote API. Quotes are held for
// a short while since spot moves slowly relative to query volume.
type MetalsClient struct {
	baseURL string
	apiKey  string
	client  Getter
	ttl     time.Duration
	clock   func() time.Time

	mu     sync.Mutex
	quotes map[string]quote
}

type quote struct {
	usdPerOz float64
	at       time.Time
}

type MetalsOption func(*MetalsClient)

func WithMetalsClient(c Getter) MetalsOption {
	return func(m *MetalsClient) {
		m.client = c
	}
}

// WithQuoteTTL sets how long a quote is reused; zero disables reuse.
func WithQuoteTTL(d time.Duration) MetalsOption {
	return func(m *MetalsClient) {
		m.ttl = d
	}
}

func WithMetalsClock(clock func() time.Time) MetalsOption {
	return func(m *MetalsClient) {
		m.clock = clock
	}
}

// NewMetalsClient creates a client for baseURL authenticated with apiKey.
func NewMetalsClient(baseURL, apiKey string, opts ...MetalsOption) (*MetalsClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("metals URL is required")
	}
	m := &MetalsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpclient.New(),
		ttl:     time.Minute,
		clock:   time.Now,
		quotes:  make(map[string]quote),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type metalsResponse struct {
	Success *bool              `json:"success"`
	Rates   map[string]float64 `json:"rates"`
	Error   json.RawMessage    `json:"error"`
}

// Quote returns USD per troy ounce for symbol.
func (m *MetalsClient) Quote(ctx context.Context, symbol string) (float64, error) {
	now := m.clock()
	m.mu.Lock()
	q, ok := m.quotes[symbol]
	m.mu.Unlock()
	if ok && m.ttl > 0 && now.Sub(q.at) < m.ttl {
		return q.usdPerOz, nil
	}

	v := url.Values{}
	v.Set("access_key", m.apiKey)
	v.Set("base", "USD")
	v.Set("symbols", symbol)
	resp, err := m.client.Get(ctx, m.baseURL+"?"+v.Encode(), http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return 0, sources.NewSourceError(sources.CategoryForStatus(se.StatusCode), Name, "metals quote: "+se.Error(), err)
		}
		return 0, sources.Classify(Name, err)
	}
	defer resp.Body.Close()

	if cat := sources.CategoryForStatus(resp.StatusCode); cat != "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		msg := fmt.Sprintf("metals quote status %d", resp.StatusCode)
		if cat == sources.CategoryRateLimited {
			return 0, sources.RateLimited(Name, sources.ParseRetryAfter(resp.Header, now), msg)
		}
		return 0, sources.NewSourceError(cat, Name, msg, nil)
	}

	var body metalsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return 0, sources.NewSourceError(sources.CategoryFatal, Name, "decode metals quote", err)
	}
	if body.Success != nil && !*body.Success {
		return 0, sources.NewSourceError(sources.CategoryFatal, Name, "metals quote rejected: "+string(body.Error), nil)
	}
	rate, ok := body.Rates[symbol]
	if !ok || rate <= 0 {
		if alt, found := body.Rates["USD"+symbol]; found && alt > 0 {
			rate, ok = alt, true
		}
	}
	if !ok || rate <= 0 {
		return 0, sources.NewSourceError(sources.CategoryFatal, Name, "metals quote missing "+symbol, nil)
	}
	// With base=USD some providers quote ounces per dollar.
	if rate < 1 {
		rate = 1 / rate
	}

	m.mu.Lock()
	m.quotes[symbol] = quote{usdPerOz: rate, at: now}
	m.mu.Unlock()
	return rate, nil
}
