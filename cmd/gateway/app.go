package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/quotagate/db/migrations"
	"github.com/dmitrymomot/quotagate/modules/gateway"
	"github.com/dmitrymomot/quotagate/pkg/config"
	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/history"
	"github.com/dmitrymomot/quotagate/pkg/httpserver"
	"github.com/dmitrymomot/quotagate/pkg/identity"
	"github.com/dmitrymomot/quotagate/pkg/metrics"
	"github.com/dmitrymomot/quotagate/pkg/pg"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/redis"
	"github.com/dmitrymomot/quotagate/pkg/requestid"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
	"github.com/dmitrymomot/quotagate/pkg/subscription/pgstore"
	"github.com/dmitrymomot/quotagate/pkg/subscription/redisstore"
	"github.com/dmitrymomot/quotagate/pkg/usage"
)

const healthTimeout = 2 * time.Second

// app holds the assembled gateway.
type app struct {
	handler http.Handler
	catalog *plans.Catalog
	drains  []httpserver.Option
	closers []func()
}

// backend is the persistence selected by STORE_BACKEND.
type backend struct {
	store   subscription.Store
	history history.Storage
	checks  []httpserver.HealthCheck
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{catalog: catalog, closers: be.closers}

	store := subscription.WithPlanValidation(be.store, catalog)

	resolver, err := entitlement.NewResolver(store, catalog,
		entitlement.WithLogger(log),
		entitlement.WithMetrics(m),
		entitlement.WithStoreTimeout(cfg.ResolverTimeout),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	g, err := gate.New(resolver, catalog,
		gate.WithLogger(log),
		gate.WithMetrics(m),
		gate.WithUpgradeURL(cfg.UpgradeURL),
		gate.WithStrict(cfg.IsDevelopment()),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	recorderOpts := []usage.RecorderOption{
		usage.WithLogger(log),
		usage.WithMetrics(m),
		usage.WithRetry(cfg.RecorderRetries, cfg.RecorderBackoff),
	}
	dispatcher := usage.NewDispatcher(
		usage.WithConcurrency(cfg.DispatcherConcurrency),
		usage.WithTaskTimeout(cfg.DispatcherTimeout),
		usage.WithDispatcherLogger(log),
		usage.WithDispatcherMetrics(m),
	)
	// usage first: its tasks append history entries
	a.drains = append(a.drains, httpserver.WithDrain("usage", dispatcher.Close))

	var historyLister gateway.HistoryLister
	if cfg.HistoryEnabled {
		writer, err := history.NewWriter(be.history, history.WriterOptions{
			BatchSize:    cfg.HistoryBatchSize,
			BatchTimeout: cfg.HistoryFlushInterval,
		}, history.WithLogger(log), history.WithMetrics(m))
		if err != nil {
			a.close()
			return nil, err
		}
		recorderOpts = append(recorderOpts, usage.WithHistory(writer))
		a.drains = append(a.drains, httpserver.WithDrain("history", writer.Close))
		historyLister = be.history
	}

	recorder, err := usage.NewRecorder(store, recorderOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	tracker, err := usage.NewTracker(recorder, dispatcher, log)
	if err != nil {
		a.close()
		return nil, err
	}

	api, err := gateway.Router(gateway.RouterOptions{
		Gate:       g,
		Tracker:    tracker,
		Lifecycle:  subscription.NewLifecycle(store),
		Catalog:    catalog,
		History:    historyLister,
		APIMinPlan: cfg.APIMinPlan,
		Logger:     log,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	var signer *identity.Signer
	if cfg.JWTSigningKey != "" {
		signer, err = identity.NewSigner(cfg.JWTSigningKey, identity.WithIssuer(cfg.ServiceName))
		if err != nil {
			a.close()
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(m.Middleware(gateway.RouteName))
	r.Use(identity.Middleware(signer,
		identity.WithDevHeader(cfg.DevAuthHeader),
		identity.WithLogger(log),
	))
	r.Get("/health", httpserver.HealthCheckHandler(log, healthTimeout, be.checks...))
	r.Handle("/metrics", metrics.Handler(registry))
	r.Mount("/", api)

	a.handler = r
	return a, nil
}

func loadCatalog(ctx context.Context, cfg config.Config) (*plans.Catalog, error) {
	src := plans.NewInMemSource(plans.DefaultPlans()...)
	if cfg.PlansFile != "" {
		src = plans.NewYAMLSource(cfg.PlansFile)
	}
	return plans.NewCatalog(ctx, src, plans.WithDefaultPlan(cfg.DefaultPlan))
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		db := pg.OpenDB(pool)
		be := &backend{
			store:   pgstore.New(db),
			history: history.NewPGStorage(db),
			checks:  []httpserver.HealthCheck{{Name: "postgres", Check: pg.Healthcheck(pool)}},
			closers: []func(){func() { _ = db.Close() }, pool.Close},
		}
		if cfg.Postgres.AutoMigrate {
			if err := pg.Migrate(ctx, db, migrations.FS, migrations.Dir, cfg.Postgres, log); err != nil {
				be.close()
				return nil, err
			}
		}
		return be, nil

	case config.BackendRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:   redisstore.New(client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix)),
			history: history.NewMemoryStorage(),
			checks:  []httpserver.HealthCheck{{Name: "redis", Check: redis.Healthcheck(client)}},
			closers: []func(){func() { _ = client.Close() }},
		}, nil

	case config.BackendMemory, "":
		return &backend{
			store:   subscription.NewMemoryStore(),
			history: history.NewMemoryStorage(),
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
}

func (b *backend) close() {
	for _, c := range b.closers {
		c()
	}
}

// close releases backend connections after the server drained.
func (a *app) close() {
	for _, c := range a.closers {
		c()
	}
}
