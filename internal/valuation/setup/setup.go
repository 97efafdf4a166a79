// Package setup assembles the valuation pipeline from configuration. The server
// and the CLI share it so both run the same sources with the same policy.
package setup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"pawnval/internal/platform/config"
	"pawnval/internal/valuation/cache"
	"pawnval/internal/valuation/estimator"
	"pawnval/internal/valuation/events"
	"pawnval/internal/valuation/handler"
	"pawnval/internal/valuation/metrics"
	"pawnval/internal/valuation/normalize"
	"pawnval/internal/valuation/orchestrator"
	"pawnval/internal/valuation/sources"
	"pawnval/internal/valuation/sources/guides"
	"pawnval/internal/valuation/sources/marketplace"
	"pawnval/internal/valuation/sources/remote"
	"pawnval/internal/valuation/store"
	"pawnval/pkg/platform/httpclient"
)

// Infra carries optional infrastructure clients. Nil fields select the
// in-process fallback: no shared cache tier, in-memory history, no events.
type Infra struct {
	Redis  *goredis.Client
	DB     *sql.DB
	Events events.Producer
	Topic  string
}

// Pipeline is the assembled valuation service.
type Pipeline struct {
	Orchestrator *orchestrator.Orchestrator
	History      store.Recorder
}

// Sources builds the adapters named in cfg.Valuation.SourceOrder, in that
// order. Adapters without a configured endpoint are skipped.
func Sources(cfg *config.Config, logger *slog.Logger) ([]sources.Source, error) {
	client := httpclient.New(httpclient.WithMaxRetries(cfg.Sources.HTTPMaxRetries))

	var out []sources.Source
	for _, name := range cfg.Valuation.SourceOrder {
		switch name {
		case guides.Name:
			list := []guides.Guide{guides.NewGames(nil)}
			if cfg.Sources.MetalsURL != "" {
				metals, err := guides.NewMetalsClient(cfg.Sources.MetalsURL, cfg.Sources.MetalsAPIKey,
					guides.WithMetalsClient(client),
					guides.WithQuoteTTL(cfg.Sources.MetalsQuoteTTL),
				)
				if err != nil {
					return nil, err
				}
				list = append(list, guides.NewBullion(metals))
			}
			out = append(out, guides.New(list, guides.WithLogger(logger)))
		case remote.Name:
			if cfg.Sources.RemoteURL == "" {
				logger.Info("remote pricing source disabled: no endpoint configured")
				continue
			}
			src, err := remote.New(cfg.Sources.RemoteURL,
				remote.WithAPIKey(cfg.Sources.RemoteAPIKey),
				remote.WithClient(client),
			)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		case marketplace.Name:
			if cfg.Sources.MarketplaceURL == "" {
				logger.Info("marketplace source disabled: no search URL configured")
				continue
			}
			src, err := marketplace.New(cfg.Sources.MarketplaceURL,
				marketplace.WithClient(client),
				marketplace.WithMaxResults(cfg.Sources.MaxSearchResults),
				marketplace.WithMinListingPrice(cfg.Sources.MinListingPrice),
				marketplace.WithLogger(logger),
			)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		default:
			return nil, fmt.Errorf("unknown source %q in source order", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valuation source is enabled")
	}
	return out, nil
}

// Policy maps configuration onto the orchestrator's fallback policy.
func Policy(cfg *config.Config) orchestrator.Policy {
	v := cfg.Valuation
	return orchestrator.Policy{
		SourceTimeout:          v.SourceTimeout,
		QueryDeadline:          v.QueryDeadline,
		RateLimitCooldown:      v.RateLimitCooldown,
		ShortCircuitConfidence: v.ShortCircuitConfidence,
		Blend:                  v.Blend,
		RaceTopN:               v.RaceTopN,
		AlternateTerms:         v.AlternateTerms,
		AlternatePenalty:       v.AlternatePenalty,
		PawnPercentage:         v.DefaultPawnPercentage,
	}
}

// EstimatorConfig maps configuration onto the estimator policy.
func EstimatorConfig(cfg *config.Config) estimator.Config {
	v := cfg.Valuation
	return estimator.Config{
		MADMultiplier:               v.MADMultiplier,
		ConfidenceBase:              v.ConfidenceBase,
		ConfidencePerPoint:          v.ConfidencePerPoint,
		ConfidencePointCap:          v.ConfidencePointCap,
		ConfidenceDispersionPenalty: v.ConfidenceDispersionPenalty,
		RecentSalesLimit:            v.RecentSalesLimit,
	}
}

// PawnRates resolves the default and per-tenant ratios.
func PawnRates(cfg *config.Config) (handler.PawnRates, error) {
	byTenant, err := handler.ParseTenantRates(cfg.Valuation.TenantPawnRates)
	if err != nil {
		return handler.PawnRates{}, err
	}
	return handler.PawnRates{Default: cfg.Valuation.DefaultPawnPercentage, ByTenant: byTenant}, nil
}

// NewPipeline wires sources, cache, history and events into an orchestrator.
// mt may be nil.
func NewPipeline(ctx context.Context, cfg *config.Config, infra Infra, logger *slog.Logger, mt *metrics.Metrics) (*Pipeline, error) {
	srcs, err := Sources(cfg, logger)
	if err != nil {
		return nil, err
	}

	mem, err := cache.NewMemory(cfg.Cache.TTL, cfg.Cache.Capacity, cache.WithMetrics(mt))
	if err != nil {
		return nil, err
	}
	var c cache.Cache = mem
	if infra.Redis != nil {
		c = cache.NewTiered(mem, cache.NewRedis(infra.Redis, cfg.Cache.TTL, mt), logger)
	}

	var history store.Recorder = store.NewMemory()
	if infra.DB != nil {
		pg := store.NewPostgres(infra.DB)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure history schema: %w", err)
		}
		history = pg
	}

	var publisher orchestrator.EventPublisher = events.Noop{}
	if infra.Events != nil {
		opts := []events.Option{events.WithLogger(logger)}
		if infra.Topic != "" {
			opts = append(opts, events.WithTopic(infra.Topic))
		}
		k, err := events.NewKafka(infra.Events, opts...)
		if err != nil {
			return nil, err
		}
		publisher = k
	}

	orch, err := orchestrator.New(srcs, c,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(mt),
		orchestrator.WithPolicy(Policy(cfg)),
		orchestrator.WithEstimator(estimator.New(EstimatorConfig(cfg))),
		orchestrator.WithNormalizer(normalize.New(
			normalize.WithMaxPrice(cfg.Valuation.MaxPrice),
			normalize.WithSoftCeilingMultiple(cfg.Valuation.SoftCeilingMultiple),
		)),
		orchestrator.WithSourceWeights(cfg.Valuation.SourceWeights),
		orchestrator.WithHistory(history),
		orchestrator.WithPublisher(publisher),
	)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Orchestrator: orch, History: history}, nil
}
