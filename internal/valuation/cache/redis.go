package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pawnval/internal/valuation/metrics"
	"pawnval/internal/valuation/models"
)

const redisKeyPrefix = "valuation:estimate:"

// Redis is a cache tier shared between service instances. Expiry is enforced by
// Redis itself.
type Redis struct {
	client  redis.Cmdable
	ttl     time.Duration
	clock   func() time.Time
	metrics *metrics.Metrics
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client redis.Cmdable, ttl time.Duration, mt *metrics.Metrics) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, clock: time.Now, metrics: mt}
}

type redisObservation struct {
	ID        string    `json:"id,omitempty"`
	Price     float64   `json:"price"`
	Title     string    `json:"title,omitempty"`
	SoldAt    time.Time `json:"soldAt,omitzero"`
	Condition string    `json:"condition,omitempty"`
	Source    string    `json:"source,omitempty"`
	URL       string    `json:"url,omitempty"`
}

type redisRecord struct {
	Query          string             `json:"query"`
	MarketValue    float64            `json:"marketValue"`
	PawnValue      float64            `json:"pawnValue"`
	PawnPercentage float64            `json:"pawnPercentage"`
	Confidence     float64            `json:"confidence"`
	RangeMin       float64            `json:"rangeMin"`
	RangeMax       float64            `json:"rangeMax"`
	DataPoints     int                `json:"dataPoints"`
	RecentSales    []redisObservation `json:"recentSales,omitempty"`
	Source         string             `json:"source"`
	Sources        []string           `json:"sources,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	StoredAt       time.Time          `json:"storedAt"`
}

func key(q models.Query) string {
	return redisKeyPrefix + q.String()
}

// Get returns the estimate for q or ErrNotFound.
func (r *Redis) Get(ctx context.Context, q models.Query) (*models.Estimate, error) {
	est, _, err := r.GetWithTime(ctx, q)
	return est, err
}

// GetWithTime also returns when the entry was stored.
func (r *Redis) GetWithTime(ctx context.Context, q models.Query) (*models.Estimate, time.Time, error) {
	raw, err := r.client.Get(ctx, key(q)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.metrics.RecordCacheLookup("redis", "miss")
			return nil, time.Time{}, ErrNotFound
		}
		r.metrics.RecordCacheLookup("redis", "error")
		return nil, time.Time{}, fmt.Errorf("get cached estimate: %w: %w", ErrUnavailable, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		r.metrics.RecordCacheLookup("redis", "error")
		return nil, time.Time{}, fmt.Errorf("decode cached estimate: %w", err)
	}
	r.metrics.RecordCacheLookup("redis", "hit")
	return fromRecord(rec), rec.StoredAt, nil
}

// Set stores est with the configured TTL.
func (r *Redis) Set(ctx context.Context, q models.Query, est *models.Estimate) error {
	if est == nil {
		return fmt.Errorf("estimate is required")
	}
	raw, err := json.Marshal(toRecord(est, r.clock()))
	if err != nil {
		return fmt.Errorf("encode estimate: %w", err)
	}
	if err := r.client.Set(ctx, key(q), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set cached estimate: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func toRecord(est *models.Estimate, storedAt time.Time) redisRecord {
	rec := redisRecord{
		Query:          est.Query.String(),
		MarketValue:    est.MarketValue,
		PawnValue:      est.PawnValue,
		PawnPercentage: est.PawnPercentage,
		Confidence:     est.Confidence,
		RangeMin:       est.PriceRange.Min,
		RangeMax:       est.PriceRange.Max,
		DataPoints:     est.DataPoints,
		Source:         est.Source,
		Sources:        est.Sources,
		Timestamp:      est.Timestamp,
		StoredAt:       storedAt,
	}
	for _, o := range est.RecentSales {
		rec.RecentSales = append(rec.RecentSales, redisObservation{
			ID:        o.ID,
			Price:     o.Price,
			Title:     o.Title,
			SoldAt:    o.SoldAt,
			Condition: string(o.Condition),
			Source:    o.Source,
			URL:       o.URL,
		})
	}
	return rec
}

func fromRecord(rec redisRecord) *models.Estimate {
	est := &models.Estimate{
		Query:          models.Query(rec.Query),
		MarketValue:    rec.MarketValue,
		PawnValue:      rec.PawnValue,
		PawnPercentage: rec.PawnPercentage,
		Confidence:     rec.Confidence,
		PriceRange:     models.PriceRange{Min: rec.RangeMin, Max: rec.RangeMax},
		DataPoints:     rec.DataPoints,
		Source:         rec.Source,
		Sources:        rec.Sources,
		Timestamp:      rec.Timestamp,
	}
	for _, o := range rec.RecentSales {
		est.RecentSales = append(est.RecentSales, models.Observation{
			ID:        o.ID,
			Price:     o.Price,
			Title:     o.Title,
			SoldAt:    o.SoldAt,
			Condition: models.ParseCondition(o.Condition),
			Source:    o.Source,
			URL:       o.URL,
		})
	}
	return est
}
