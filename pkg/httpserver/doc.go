// Package httpserver runs the gateway's HTTP listener with graceful shutdown.
//
// Run blocks until its context is cancelled, SIGINT or SIGTERM arrives, or
// Shutdown is called. Shutdown first lets in-flight requests finish, then runs
// the registered drains in order, all within the shutdown timeout. Drains are
// where background work spawned by handlers is flushed:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithDrain("usage", dispatcher.Close),
//		httpserver.WithDrain("history", historyWriter.Close),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// HealthCheckHandler reports readiness of named dependencies as JSON.
package httpserver
