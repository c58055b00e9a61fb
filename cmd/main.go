package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/reverse-proxy/config"
	"github.com/angeloszaimis/reverse-proxy/internal/handler"
	"github.com/angeloszaimis/reverse-proxy/internal/healthcheck"
	"github.com/angeloszaimis/reverse-proxy/internal/httpserver"
	"github.com/angeloszaimis/reverse-proxy/internal/metrics"
	"github.com/angeloszaimis/reverse-proxy/internal/registry"
	"github.com/angeloszaimis/reverse-proxy/internal/strategy"
	"github.com/angeloszaimis/reverse-proxy/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		log.Error("Failed to build backend registry", slog.Any("err", err))
		os.Exit(1)
	}

	strat := createStrategy(log, cfg.Strategy.Type)

	collector := metrics.NewCollector(cfg.Metrics.SampleSize, log)

	monitor := healthcheck.NewMonitor(
		reg,
		collector,
		cfg.ProbeInterval(),
		cfg.ProbeTimeout(),
		cfg.HealthCheck.Path,
		log,
	)
	monitor.Start(ctx)

	forwarder := handler.NewForwarder(
		log,
		reg,
		strat,
		collector,
		cfg.RequestTimeout(),
		cfg.Proxy.RetryAttempts,
		cfg.Proxy.RetryExcludeLast,
	)

	mux := setupRouter(forwarder, collector, cfg.Strategy.Type)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Starting reverse proxy",
		slog.String("address", cfg.Server.Address),
		slog.String("strategy", cfg.Strategy.Type),
		slog.Int("backends", reg.Len()))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting reverse proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildRegistry(cfg *config.Config, log *slog.Logger) (*registry.Registry, error) {
	urls := make([]*url.URL, 0, len(cfg.Backends))

	for _, backend := range cfg.Backends {
		u, err := url.Parse(backend.URL)
		if err != nil {
			log.Error("Failed to parse backend URL",
				slog.String("url", backend.URL),
				slog.String("error", err.Error()))
			return nil, err
		}
		urls = append(urls, u)
	}

	return registry.New(urls, cfg.HealthCheck.HealthyThreshold, cfg.HealthCheck.UnhealthyThreshold)
}

func createStrategy(logger *slog.Logger, strategyType string) strategy.Strategy {
	switch strategyType {
	case "round-robin":
		return strategy.NewRoundRobinStrategy()
	case "least-conn":
		return strategy.NewLeastConnStrategy()
	case "random":
		return strategy.NewRandomStrategy()
	default:
		logger.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", strategyType))
		return strategy.NewRoundRobinStrategy()
	}
}
