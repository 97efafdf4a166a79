package setup

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawnval/internal/platform/config"
	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/sources/guides"
	"pawnval/internal/valuation/sources/marketplace"
	"pawnval/internal/valuation/sources/remote"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFiles()
	require.NoError(t, err)
	return cfg
}

func names(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	srcs, err := Sources(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	out := make([]string, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, s.Name())
	}
	return out
}

func TestSourcesSkipUnconfigured(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, []string{guides.Name, marketplace.Name}, names(t, cfg))

	cfg.Sources.RemoteURL = "http://pricing.internal/value"
	assert.Equal(t, []string{guides.Name, remote.Name, marketplace.Name}, names(t, cfg))

	cfg.Valuation.SourceOrder = []string{remote.Name, guides.Name}
	assert.Equal(t, []string{remote.Name, guides.Name}, names(t, cfg))
}

func TestSourcesRejectUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Valuation.SourceOrder = []string{"auction-house"}
	_, err := Sources(cfg, slog.Default())
	assert.ErrorContains(t, err, "auction-house")

	cfg.Valuation.SourceOrder = []string{remote.Name}
	_, err = Sources(cfg, slog.Default())
	assert.ErrorContains(t, err, "no valuation source")
}

func TestPawnRates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Valuation.TenantPawnRates = "acme=0.4"
	rates, err := PawnRates(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.4, rates.For("ACME"))
	assert.Equal(t, 0.30, rates.For("other"))

	cfg.Valuation.TenantPawnRates = "acme=2"
	_, err = PawnRates(cfg)
	assert.Error(t, err)
}

func TestNewPipelineInProcess(t *testing.T) {
	cfg := testConfig(t)
	cfg.Valuation.SourceOrder = []string{guides.Name}

	p, err := NewPipeline(context.Background(), cfg, Infra{}, slog.Default(), nil)
	require.NoError(t, err)

	est, err := p.Orchestrator.Estimate(context.Background(), models.Query("legend of zelda"), 0.5)
	require.NoError(t, err)
	assert.Equal(t, guides.Name, est.Source)
	assert.InDelta(t, est.MarketValue*0.5, est.PawnValue, 0.01)

	recent, err := p.History.Recent(context.Background(), models.Query("legend of zelda"), 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
