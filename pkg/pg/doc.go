// Package pg bootstraps PostgreSQL access on top of pgx/v5: a connection pool
// opened with exponential backoff, a database/sql bridge for code written
// against the standard interface, goose migrations read from an embedded
// filesystem, a health check and SQLSTATE classification helpers.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	db := pg.OpenDB(pool)
//	if err := pg.Migrate(ctx, db, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//	    return err
//	}
//
// # Error Handling
//
// [IsDuplicateKeyError], [IsNotFoundError] and [IsUndefinedFunctionError]
// unwrap *pgconn.PgError values so business code can branch on them without
// importing pgx.
package pg
