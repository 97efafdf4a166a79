package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/twmb/franz-go/pkg/kgo"

	httpapi "pawnval/internal/http"
	"pawnval/internal/platform/config"
	"pawnval/internal/platform/httpserver"
	"pawnval/internal/platform/kafka"
	"pawnval/internal/platform/logger"
	platformmetrics "pawnval/internal/platform/metrics"
	"pawnval/internal/platform/postgres"
	"pawnval/internal/platform/redis"
	"pawnval/internal/valuation/handler"
	"pawnval/internal/valuation/metrics"
	"pawnval/internal/valuation/setup"
)

// main wires dependencies, serves the valuation API and shuts down gracefully.
// Business logic lives in internal/valuation.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := platformmetrics.NewRegistry()
	mt := metrics.NewWithRegisterer(reg)

	infra := setup.Infra{Topic: cfg.Kafka.Topic}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		infra.Redis = rc.Client
		log.Info("shared cache tier enabled")
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		infra.DB = db
		log.Info("valuation history stored in postgres")
	}

	var producer *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		kcfg := kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, ClientID: cfg.Kafka.ClientID}
		producer, err = kafka.NewProducer(kcfg)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := kafka.EnsureTopic(ctx, producer, kcfg); err != nil {
			log.Warn("ensure valuation topic", "topic", kcfg.Topic, "error", err)
		}
		infra.Events = producer
		log.Info("valuation events enabled", "topic", kcfg.Topic)
	}

	pipeline, err := setup.NewPipeline(ctx, cfg, infra, log, mt)
	if err != nil {
		return err
	}
	rates, err := setup.PawnRates(cfg)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(log, handler.New(pipeline.Orchestrator, rates, log))
	servers := []*http.Server{httpserver.New(cfg.Server, router)}
	if cfg.Server.MetricsAddr != "" {
		servers = append(servers, httpserver.NewWithAddr(cfg.Server.MetricsAddr, cfg.Server, platformmetrics.Handler(reg)))
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("listening", "addr", srv.Addr, "env", cfg.Env)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if producer != nil {
		if err := producer.Flush(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
