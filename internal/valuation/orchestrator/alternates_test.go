package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pawnval/internal/valuation/models"
	"pawnval/pkg/testutil"
)

func TestAlternateQueries(t *testing.T) {
	testutil.Given(t, "a branded model query", func(t *testing.T) {
		q := models.Query("apple iphone 14 pro max")

		testutil.Then(t, "suffixes, brand and device family are generalized", func(t *testing.T) {
			assert.Equal(t, []models.Query{
				"apple iphone 14",
				"iphone 14 pro max",
				"apple phone 14 pro max",
			}, AlternateQueries(q, 3))
		})

		testutil.Then(t, "the limit is honored", func(t *testing.T) {
			assert.Len(t, AlternateQueries(q, 1), 1)
			assert.Nil(t, AlternateQueries(q, 0))
		})
	})

	testutil.Given(t, "a query with nothing to generalize", func(t *testing.T) {
		assert.Empty(t, AlternateQueries("cast iron skillet", 3))
	})

	testutil.Given(t, "a query made only of stripped words", func(t *testing.T) {
		assert.Empty(t, AlternateQueries("pro max", 3), "alternatives must stay meaningful")
	})
}

func TestCooldowns(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}
	c := newCooldowns(clock.Now)

	assert.Zero(t, c.remaining("remote"))

	c.arm("remote", time.Minute)
	assert.Equal(t, time.Minute, c.remaining("remote"))

	c.arm("remote", 10*time.Second)
	assert.Equal(t, time.Minute, c.remaining("remote"), "shorter cooldown does not cut an existing one")

	clock.Advance(time.Minute)
	assert.Zero(t, c.remaining("remote"))
	assert.Empty(t, c.until, "expired cooldowns are dropped")
}
