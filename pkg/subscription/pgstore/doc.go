// Package pgstore implements subscription.Store on PostgreSQL.
//
// Subscriptions live in one row per user (primary key on user_id), usage in
// one row per (user_id, period). The combined read is a single LEFT JOIN, and
// increments call the increment_usage() function installed by the embedded
// migrations in db/migrations, which performs an INSERT ... ON CONFLICT DO
// UPDATE with relative additions.
//
//	db := pg.OpenDB(pool)
//	store := pgstore.New(db)
package pgstore
