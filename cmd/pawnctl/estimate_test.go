package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PAWNVAL_VALUATION_SOURCE_ORDER", "guides")
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEstimateFromGuide(t *testing.T) {
	out, err := execute(t, "estimate", "--pawn-percentage", "0.5", "Legend", "of", "Zelda")
	require.NoError(t, err)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Query       string  `json:"query"`
			MarketValue float64 `json:"marketValue"`
			PawnValue   float64 `json:"pawnValue"`
			Source      string  `json:"source"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "legend of zelda", resp.Data.Query)
	assert.Equal(t, "guides", resp.Data.Source)
	assert.InDelta(t, resp.Data.MarketValue/2, resp.Data.PawnValue, 0.01)
}

func TestEstimateNoData(t *testing.T) {
	out, err := execute(t, "estimate", "--timeout", "2s", "zzqx unknown widget")
	require.NoError(t, err)
	assert.Contains(t, out, `"error": "no_data"`)
}

func TestEstimateRejectsBadRatio(t *testing.T) {
	_, err := execute(t, "estimate", "--pawn-percentage", "1.5", "ps5")
	assert.ErrorContains(t, err, "pawn-percentage")
}

func TestEstimateRequiresItem(t *testing.T) {
	_, err := execute(t, "estimate")
	assert.Error(t, err)
}

func TestHistoryRequiresPostgres(t *testing.T) {
	_, err := execute(t, "history", "ps5")
	assert.ErrorContains(t, err, "PAWNVAL_POSTGRES_DSN")
}
