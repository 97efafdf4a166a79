//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/store"
	"pawnval/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "valuation_history"))
}

func (s *PostgresStoreSuite) TestRecordAndRecent() {
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for i, v := range []float64{465, 470, 480} {
		s.Require().NoError(s.store.Record(ctx, &models.Estimate{
			Query:          "iphone 14 pro",
			MarketValue:    v,
			PawnValue:      v * 0.3,
			PawnPercentage: 0.3,
			Confidence:     0.62,
			PriceRange:     models.PriceRange{Min: 450, Max: 480},
			DataPoints:     4,
			Source:         models.SourceBlended,
			Sources:        []string{"marketplace", "remote"},
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.store.Recent(ctx, "iphone 14 pro", 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(480.0, got[0].MarketValue)
	s.Equal(470.0, got[1].MarketValue)
	s.Equal([]string{"marketplace", "remote"}, got[0].Sources)
	s.Equal(models.PriceRange{Min: 450, Max: 480}, got[0].PriceRange)
	s.True(got[0].ComputedAt.Equal(base.Add(2*time.Minute)))
	s.Equal(models.Query("iphone 14 pro"), got[0].Query)
}

func (s *PostgresStoreSuite) TestRecordWithoutSources() {
	ctx := context.Background()
	s.Require().NoError(s.store.Record(ctx, &models.Estimate{
		Query:       "gold coin",
		MarketValue: 2000,
		PriceRange:  models.PriceRange{Min: 1960, Max: 2040},
		DataPoints:  1,
		Source:      "guides",
		Timestamp:   time.Now(),
	}))

	got, err := s.store.Recent(ctx, "gold coin", 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Empty(got[0].Sources)
}

func (s *PostgresStoreSuite) TestRecentUnknownQuery() {
	got, err := s.store.Recent(context.Background(), "nothing", 10)
	s.Require().NoError(err)
	s.Empty(got)
}
