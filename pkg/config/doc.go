// Package config loads the gateway configuration from environment variables.
//
// Values are read into tagged structs by github.com/caarlos0/env/v11 after
// github.com/joho/godotenv has loaded an optional .env file. Nested
// configurations of the HTTP server, PostgreSQL and Redis packages are parsed
// together with the gateway settings:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	if cfg.StoreBackend == config.BackendPostgres {
//		pool, err := pg.Connect(ctx, cfg.Postgres)
//		...
//	}
//
// Parse and ParseWith are generic helpers for any tagged struct; ParseWith
// takes an explicit environment and is convenient in tests.
package config
