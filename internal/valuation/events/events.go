// Package events announces computed valuations to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"pawnval/internal/valuation/models"
)

// TypeValuationCompleted is the event type of a freshly computed estimate.
const TypeValuationCompleted = "valuation.completed"

// Publisher announces freshly computed estimates.
type Publisher interface {
	Publish(ctx context.Context, est *models.Estimate) error
}

// Event is the JSON body of a valuation.completed record.
type Event struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Query          string   `json:"query"`
	MarketValue    float64  `json:"marketValue"`
	PawnValue      float64  `json:"pawnValue"`
	PawnPercentage float64  `json:"pawnPercentage"`
	Confidence     float64  `json:"confidence"`
	DataPoints     int      `json:"dataPoints"`
	PriceMin       float64  `json:"priceMin"`
	PriceMax       float64  `json:"priceMax"`
	Source         string   `json:"source"`
	Sources        []string `json:"sources"`
	ComputedAt     string   `json:"computedAt"`
}

// NewEvent builds the event for est.
func NewEvent(est *models.Estimate) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           TypeValuationCompleted,
		Query:          est.Query.String(),
		MarketValue:    est.MarketValue,
		PawnValue:      est.PawnValue,
		PawnPercentage: est.PawnPercentage,
		Confidence:     est.Confidence,
		DataPoints:     est.DataPoints,
		PriceMin:       est.PriceRange.Min,
		PriceMax:       est.PriceRange.Max,
		Source:         est.Source,
		Sources:        est.Sources,
		ComputedAt:     est.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

// Kafka publishes one record per estimate, keyed by query so that all events
// for a query land on one partition. Produce is asynchronous; delivery
// failures are logged.
type Kafka struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

type Option func(*Kafka)

func WithLogger(logger *slog.Logger) Option {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// WithTopic overrides the producer's default topic.
func WithTopic(topic string) Option {
	return func(k *Kafka) {
		k.topic = topic
	}
}

func NewKafka(producer Producer, opts ...Option) (*Kafka, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	k := &Kafka{producer: producer, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

func (k *Kafka) Publish(ctx context.Context, est *models.Estimate) error {
	if est == nil {
		return fmt.Errorf("estimate is required")
	}
	ev := NewEvent(est)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal valuation event: %w", err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(ev.Query),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	// The record must outlive the request that produced it.
	k.producer.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("valuation event delivery failed",
				"query", ev.Query,
				"event_id", ev.ID,
				"error", err,
			)
		}
	})
	return nil
}

// Flush waits for buffered records to be delivered.
func (k *Kafka) Flush(ctx context.Context) error {
	return k.producer.Flush(ctx)
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, *models.Estimate) error { return nil }
