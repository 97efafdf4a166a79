package guides

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/sources"
	"pawnval/pkg/platform/httpclient"
)

type stubQuoter struct {
	prices map[string]float64
	err    error
	calls  int
}

func (s *stubQuoter) Quote(_ context.Context, symbol string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.prices[symbol], nil
}

func TestGamesGuide(t *testing.T) {
	g := NewGames(nil)

	tests := []struct {
		query models.Query
		want  float64
		ok    bool
	}{
		{query: "super mario 64", want: 40, ok: true},
		{query: "nintendo switch console", want: 200, ok: true},
		{query: "playstation 5", want: 400, ok: true},
		{query: "nintendo 64", want: 80, ok: true},
		{query: "playstation 3", ok: false},
		{query: "cast iron skillet", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.query.String(), func(t *testing.T) {
			est, ok, err := g.Lookup(context.Background(), tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, est.MarketValue)
			require.NotNil(t, est.PriceRange)
			assert.InDelta(t, tt.want*0.8, est.PriceRange.Min, 1e-9)
			assert.InDelta(t, tt.want*1.2, est.PriceRange.Max, 1e-9)
			assert.Equal(t, 1, est.DataPoints)
		})
	}
}

func TestBullionGuide(t *testing.T) {
	q := &stubQuoter{prices: map[string]float64{Gold: 2000, Silver: 30}}
	b := NewBullion(q)

	tests := []struct {
		query models.Query
		want  float64
		ok    bool
	}{
		{query: "gold eagle coin", want: 2000, ok: true},
		{query: "silver bar 10 oz", want: 300, ok: true},
		{query: "1/10 oz gold maple", want: 200, ok: true},
		{query: "gold bar 31.1035g", want: 2000, ok: true},
		{query: "silver necklace", ok: false},
		{query: "iphone 14 pro", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.query.String(), func(t *testing.T) {
			est, ok, err := b.Lookup(context.Background(), tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.InDelta(t, tt.want, est.MarketValue, 1e-6)
			assert.Equal(t, 0.95, est.Confidence)
			assert.InDelta(t, tt.want*0.98, est.PriceRange.Min, 1e-6)
			assert.InDelta(t, tt.want*1.02, est.PriceRange.Max, 1e-6)
		})
	}
}

func TestSourceFirstMatchWins(t *testing.T) {
	q := &stubQuoter{prices: map[string]float64{Gold: 2000}}
	src := New([]Guide{NewGames(nil), NewBullion(q)})
	assert.Equal(t, Name, src.Name())

	res, err := src.Fetch(context.Background(), "playstation 5")
	require.NoError(t, err)
	require.NoError(t, res.Validate())
	assert.Equal(t, models.KindDirectEstimate, res.Kind)
	assert.Equal(t, "video_games", res.Direct.Category)
	assert.Zero(t, q.calls, "bullion is not consulted once a guide matched")

	res, err = src.Fetch(context.Background(), "gold coin")
	require.NoError(t, err)
	assert.Equal(t, "bullion", res.Direct.Category)

	_, err = src.Fetch(context.Background(), "cast iron skillet")
	assert.Equal(t, sources.CategoryEmptyResult, sources.CategoryOf(err))
}

func TestSourceGuideFailure(t *testing.T) {
	src := New([]Guide{NewBullion(&stubQuoter{err: errors.New("connection reset")})})
	_, err := src.Fetch(context.Background(), "gold coin")
	assert.Equal(t, sources.CategoryTransient, sources.CategoryOf(err))
}

func TestMetalsClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "key", r.URL.Query().Get("access_key"))
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		switch r.URL.Query().Get("symbols") {
		case Gold:
			_, _ = w.Write([]byte(`{"success":true,"base":"USD","rates":{"XAU":0.0005}}`))
		case Silver:
			_, _ = w.Write([]byte(`{"success":true,"rates":{"XAG":31.5}}`))
		default:
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":202,"info":"invalid symbol"}}`))
		}
	}))
	defer srv.Close()

	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	m, err := NewMetalsClient(srv.URL, "key",
		WithMetalsClient(httpclient.New(httpclient.WithHTTPClient(srv.Client()))),
		WithMetalsClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	gold, err := m.Quote(context.Background(), Gold)
	require.NoError(t, err)
	assert.InDelta(t, 2000, gold, 1e-6, "inverse quotes are flipped")

	silver, err := m.Quote(context.Background(), Silver)
	require.NoError(t, err)
	assert.Equal(t, 31.5, silver)

	_, err = m.Quote(context.Background(), Gold)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "quote reused within ttl")

	now = now.Add(2 * time.Minute)
	_, err = m.Quote(context.Background(), Gold)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	_, err = m.Quote(context.Background(), "XPT")
	assert.Equal(t, sources.CategoryFatal, sources.CategoryOf(err))
}

func TestMetalsClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m, err := NewMetalsClient(srv.URL, "key", WithMetalsClient(httpclient.New(httpclient.WithHTTPClient(srv.Client()))))
	require.NoError(t, err)
	_, err = m.Quote(context.Background(), Gold)
	assert.Equal(t, sources.CategoryRateLimited, sources.CategoryOf(err))
	assert.Equal(t, 30*time.Second, sources.RetryAfterOf(err))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity([]string{"super", "mario", "64"}, []string{"super", "mario", "64"}), 1e-9)
	assert.InDelta(t, 2.0/3.0, similarity([]string{"super", "mario", "64"}, []string{"super", "mario", "bros"}), 1e-9)
	assert.Zero(t, similarity(nil, []string{"fifa"}))
}
