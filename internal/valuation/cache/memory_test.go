package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pawnval/internal/valuation/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MemoryCacheSuite struct {
	suite.Suite
	clock *fakeClock
	cache *Memory
	ctx   context.Context
}

func TestMemoryCacheSuite(t *testing.T) {
	suite.Run(t, new(MemoryCacheSuite))
}

func (s *MemoryCacheSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)}
	c, err := NewMemory(time.Minute, 2, WithClock(s.clock.Now))
	s.Require().NoError(err)
	s.cache = c
	s.ctx = context.Background()
}

func estimateFor(q models.Query, value float64) *models.Estimate {
	return &models.Estimate{Query: q, MarketValue: value, PriceRange: models.PriceRange{Min: value, Max: value}}
}

func (s *MemoryCacheSuite) TestHitWithinTTL() {
	est := estimateFor("nintendo switch", 200)
	s.Require().NoError(s.cache.Set(s.ctx, "nintendo switch", est))

	s.clock.Advance(59 * time.Second)
	got, err := s.cache.Get(s.ctx, "nintendo switch")
	s.Require().NoError(err)
	s.Same(est, got)
}

func (s *MemoryCacheSuite) TestExpiresAtTTL() {
	s.Require().NoError(s.cache.Set(s.ctx, "nintendo switch", estimateFor("nintendo switch", 200)))

	s.clock.Advance(time.Minute)
	_, err := s.cache.Get(s.ctx, "nintendo switch")
	s.True(errors.Is(err, ErrNotFound))
	s.Equal(0, s.cache.Len(), "expired entry is removed on read")
}

func (s *MemoryCacheSuite) TestMiss() {
	_, err := s.cache.Get(s.ctx, "unknown")
	s.True(errors.Is(err, ErrNotFound))
}

func (s *MemoryCacheSuite) TestEvictsLeastRecentlyUsed() {
	s.Require().NoError(s.cache.Set(s.ctx, "a", estimateFor("a", 1)))
	s.Require().NoError(s.cache.Set(s.ctx, "b", estimateFor("b", 2)))

	_, err := s.cache.Get(s.ctx, "a")
	s.Require().NoError(err)

	s.Require().NoError(s.cache.Set(s.ctx, "c", estimateFor("c", 3)))

	_, err = s.cache.Get(s.ctx, "b")
	s.True(errors.Is(err, ErrNotFound), "b was least recently used")
	_, err = s.cache.Get(s.ctx, "a")
	s.NoError(err)
	_, err = s.cache.Get(s.ctx, "c")
	s.NoError(err)
}

func (s *MemoryCacheSuite) TestSetAtKeepsOriginalExpiry() {
	storedAt := s.clock.Now().Add(-50 * time.Second)
	s.Require().NoError(s.cache.SetAt(s.ctx, "a", estimateFor("a", 1), storedAt))

	_, err := s.cache.Get(s.ctx, "a")
	s.Require().NoError(err)

	s.clock.Advance(10 * time.Second)
	_, err = s.cache.Get(s.ctx, "a")
	s.True(errors.Is(err, ErrNotFound))
}

func (s *MemoryCacheSuite) TestRejectsNilEstimate() {
	s.Error(s.cache.Set(s.ctx, "a", nil))
}

type stubShared struct {
	est      *models.Estimate
	storedAt time.Time
	err      error
	sets     int
}

func (f *stubShared) Get(ctx context.Context, q models.Query) (*models.Estimate, error) {
	est, _, err := f.GetWithTime(ctx, q)
	return est, err
}

func (f *stubShared) GetWithTime(context.Context, models.Query) (*models.Estimate, time.Time, error) {
	if f.err != nil {
		return nil, time.Time{}, f.err
	}
	if f.est == nil {
		return nil, time.Time{}, ErrNotFound
	}
	return f.est, f.storedAt, nil
}

func (f *stubShared) Set(_ context.Context, _ models.Query, est *models.Estimate) error {
	f.sets++
	f.est = est
	return f.err
}

func (s *MemoryCacheSuite) TestTieredBackfillsLocal() {
	shared := &stubShared{est: estimateFor("a", 1), storedAt: s.clock.Now()}
	tiered := NewTiered(s.cache, shared, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := tiered.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(1.0, got.MarketValue)

	shared.est = nil
	got, err = s.cache.Get(s.ctx, "a")
	s.Require().NoError(err, "shared hit is copied locally")
	s.Equal(1.0, got.MarketValue)
}

func (s *MemoryCacheSuite) TestTieredSharedFailureIsMiss() {
	shared := &stubShared{err: errors.New("connection refused")}
	tiered := NewTiered(s.cache, shared, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := tiered.Get(s.ctx, "a")
	s.True(errors.Is(err, ErrNotFound))

	s.NoError(tiered.Set(s.ctx, "a", estimateFor("a", 1)), "shared write failure does not fail the request")
	s.Equal(1, shared.sets)
	_, err = s.cache.Get(s.ctx, "a")
	s.NoError(err)
}
