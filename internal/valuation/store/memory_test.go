package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawnval/internal/valuation/models"
)

func estimateAt(q models.Query, value float64, at time.Time) *models.Estimate {
	return &models.Estimate{
		Query:          q,
		MarketValue:    value,
		PawnValue:      value * 0.3,
		PawnPercentage: 0.3,
		Confidence:     0.6,
		PriceRange:     models.PriceRange{Min: value - 10, Max: value + 10},
		DataPoints:     4,
		Source:         "marketplace",
		Sources:        []string{"marketplace"},
		Timestamp:      at,
	}
}

func TestMemoryRecent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Record(ctx, estimateAt("iphone 14 pro", 465, base)))
	require.NoError(t, m.Record(ctx, estimateAt("nintendo switch", 200, base.Add(time.Minute))))
	require.NoError(t, m.Record(ctx, estimateAt("iphone 14 pro", 470, base.Add(2*time.Minute))))

	got, err := m.Recent(ctx, "iphone 14 pro", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 470.0, got[0].MarketValue, "newest first")
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, 465.0, got[1].MarketValue)

	got, err = m.Recent(ctx, "iphone 14 pro", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = m.Recent(ctx, "unknown", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryRecordCopiesSources(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	est := estimateAt("gold coin", 2000, time.Now())
	require.NoError(t, m.Record(ctx, est))
	est.Sources[0] = "mutated"

	got, err := m.Recent(ctx, "gold coin", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"marketplace"}, got[0].Sources)

	assert.Error(t, m.Record(ctx, nil))
}

func TestMemoryDropsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithCapacity(100))
	base := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	for i := range 5000 {
		q := models.Query(fmt.Sprintf("item %d", i))
		require.NoError(t, m.Record(ctx, estimateAt(q, float64(i+1), base.Add(time.Duration(i)*time.Second))))
	}
	assert.Equal(t, 100, m.Len())

	got, err := m.Recent(ctx, "item 0", 0)
	require.NoError(t, err)
	assert.Empty(t, got, "oldest record evicted")

	got, err = m.Recent(ctx, "item 4999", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5000), got[0].ID)

	got, err = m.Recent(ctx, "item 4900", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1, "oldest retained record")
}

func TestMemoryRecentAfterWrap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithCapacity(3))
	base := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	for i, v := range []float64{100, 200, 300, 400, 500} {
		require.NoError(t, m.Record(ctx, estimateAt("gold ring", v, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := m.Recent(ctx, "gold ring", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{500, 400, 300}, []float64{got[0].MarketValue, got[1].MarketValue, got[2].MarketValue})
}
