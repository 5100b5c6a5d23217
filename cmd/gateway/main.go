// Command gateway runs the plan-based quota and entitlement gateway.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/quotagate/pkg/config"
	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/httpserver"
	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), gate.LogExtractor()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize gateway", logger.Error(err))
		os.Exit(1)
	}
	defer a.close()

	srv := httpserver.NewFromConfig(cfg.HTTP, append(a.drains, httpserver.WithLogger(log))...)
	log.Info("starting gateway",
		slog.String("backend", cfg.StoreBackend),
		slog.Int("plans", len(a.catalog.List())))

	if err := srv.Run(ctx, a.handler); err != nil {
		log.Error("gateway stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("gateway stopped gracefully")
}
