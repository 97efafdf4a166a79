package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawnval/internal/valuation/models"
)

func prices(obs []models.Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Price
	}
	return out
}

func TestNormalizeObservationSet(t *testing.T) {
	n := New()
	soldAt := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)

	t.Run("drops non-positive and non-finite prices", func(t *testing.T) {
		r := models.NewObservationSet("marketplace", []models.Observation{
			{Title: "a", Price: 100},
			{Title: "b", Price: 0},
			{Title: "c", Price: -5},
			{Title: "d", Price: math.NaN()},
			{Title: "e", Price: math.Inf(1)},
		})
		b, err := n.Normalize(r)
		require.NoError(t, err)
		assert.Equal(t, []float64{100}, prices(b.Observations))
		assert.Equal(t, 1.0, b.Weight)
		assert.False(t, b.Synthetic())
	})

	t.Run("drops prices above the hard ceiling", func(t *testing.T) {
		r := models.NewObservationSet("marketplace", []models.Observation{
			{Title: "a", Price: 100},
			{Title: "b", Price: DefaultMaxPrice + 1},
		})
		b, err := n.Normalize(r)
		require.NoError(t, err)
		assert.Equal(t, []float64{100}, prices(b.Observations))
	})

	t.Run("drops prices far above the sample median", func(t *testing.T) {
		r := models.NewObservationSet("marketplace", []models.Observation{
			{Title: "a", Price: 100},
			{Title: "b", Price: 110},
			{Title: "c", Price: 90},
			{Title: "d", Price: 5000},
		})
		b, err := n.Normalize(r)
		require.NoError(t, err)
		assert.Equal(t, []float64{100, 110, 90}, prices(b.Observations))
	})

	t.Run("soft ceiling can be disabled", func(t *testing.T) {
		r := models.NewObservationSet("marketplace", []models.Observation{
			{Title: "a", Price: 100},
			{Title: "b", Price: 110},
			{Title: "c", Price: 5000},
		})
		b, err := New(WithSoftCeilingMultiple(0)).Normalize(r)
		require.NoError(t, err)
		assert.Len(t, b.Observations, 3)
	})

	t.Run("deduplicates title price soldAt triples", func(t *testing.T) {
		r := models.NewObservationSet("marketplace", []models.Observation{
			{Title: "iPhone 14 Pro", Price: 450, SoldAt: soldAt},
			{Title: "iphone  14 pro", Price: 450, SoldAt: soldAt},
			{Title: "iPhone 14 Pro", Price: 450},
			{Title: "iPhone 14 Pro", Price: 460, SoldAt: soldAt},
		})
		b, err := n.Normalize(r)
		require.NoError(t, err)
		assert.Equal(t, []float64{450, 450, 460}, prices(b.Observations))
	})

	t.Run("fills source, condition and id", func(t *testing.T) {
		r := models.NewObservationSet("marketplace", []models.Observation{{Title: "a", Price: 10}})
		b, err := n.Normalize(r)
		require.NoError(t, err)
		require.Len(t, b.Observations, 1)
		o := b.Observations[0]
		assert.Equal(t, "marketplace", o.Source)
		assert.Equal(t, models.ConditionUnknown, o.Condition)
		assert.NotEmpty(t, o.ID)
	})

	t.Run("everything filtered yields an empty batch", func(t *testing.T) {
		b, err := n.Normalize(models.NewObservationSet("marketplace", []models.Observation{{Price: 0}}))
		require.NoError(t, err)
		assert.True(t, b.Empty())
	})
}

func TestNormalizeDirectEstimate(t *testing.T) {
	n := New()

	b, err := n.Normalize(models.NewDirectEstimate("guides", models.DirectEstimate{
		MarketValue: 200,
		Confidence:  0.9,
		DataPoints:  1,
		Category:    "video_games",
	}))
	require.NoError(t, err)
	assert.True(t, b.Synthetic())
	assert.Equal(t, 0.9, b.Weight)
	require.Len(t, b.Observations, 1)
	assert.Equal(t, 200.0, b.Observations[0].Price)
	assert.Equal(t, "video_games", b.Observations[0].Title)

	b, err = n.Normalize(models.NewDirectEstimate("remote", models.DirectEstimate{MarketValue: 0}))
	require.NoError(t, err)
	assert.True(t, b.Empty())
}

func TestNormalizeRejectsMalformedResult(t *testing.T) {
	r := models.NewObservationSet("marketplace", []models.Observation{{Price: 1}})
	r.Direct = &models.DirectEstimate{MarketValue: 1}
	_, err := New().Normalize(r)
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 470.0, Median([]float64{450, 470, 460, 480, 5000}))
	assert.Equal(t, 15.0, Median([]float64{20, 10}))
}
