package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pawnval/internal/valuation/models"
)

// Schema creates the history table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS valuation_history (
	id              BIGSERIAL PRIMARY KEY,
	query           TEXT NOT NULL,
	market_value    DOUBLE PRECISION NOT NULL,
	pawn_value      DOUBLE PRECISION NOT NULL,
	pawn_percentage DOUBLE PRECISION NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	price_min       DOUBLE PRECISION NOT NULL,
	price_max       DOUBLE PRECISION NOT NULL,
	data_points     INTEGER NOT NULL,
	source          TEXT NOT NULL,
	sources         TEXT[] NOT NULL DEFAULT '{}',
	computed_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS valuation_history_query_idx
	ON valuation_history (query, computed_at DESC);
`

// PostgresStore persists valuation history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed history store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies Schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure valuation history schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, est *models.Estimate) error {
	if est == nil {
		return fmt.Errorf("estimate is required")
	}
	r := fromEstimate(est)
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	query := `
		INSERT INTO valuation_history (
			query, market_value, pawn_value, pawn_percentage, confidence,
			price_min, price_max, data_points, source, sources, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.Query.String(), r.MarketValue, r.PawnValue, r.PawnPercentage, r.Confidence,
		r.PriceRange.Min, r.PriceRange.Max, r.DataPoints, r.Source, pq.Array(sources), r.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("record valuation: %w", err)
	}
	return nil
}

// Recent returns up to limit records for q, newest first.
func (s *PostgresStore) Recent(ctx context.Context, q models.Query, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, market_value, pawn_value, pawn_percentage, confidence,
			price_min, price_max, data_points, source, sources, computed_at
		FROM valuation_history
		WHERE query = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT $2
	`, q.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list valuation history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r     Record
			query string
		)
		if err := rows.Scan(&r.ID, &query, &r.MarketValue, &r.PawnValue, &r.PawnPercentage, &r.Confidence,
			&r.PriceRange.Min, &r.PriceRange.Max, &r.DataPoints, &r.Source, pq.Array(&r.Sources), &r.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan valuation history: %w", err)
		}
		r.Query = models.Query(query)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate valuation history: %w", err)
	}
	return out, nil
}
