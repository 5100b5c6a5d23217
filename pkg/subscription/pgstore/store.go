package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/quotagate/pkg/pg"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

const subscriptionColumns = `user_id, plan_id, status, current_period_end, cancel_at_period_end, cancelled_at, created_at, updated_at`

const (
	querySelectSubscription = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`

	querySelectWithUsage = `SELECT s.user_id, s.plan_id, s.status, s.current_period_end, s.cancel_at_period_end,
	s.cancelled_at, s.created_at, s.updated_at,
	COALESCE(u.files_processed, 0), COALESCE(u.storage_used_bytes, 0),
	COALESCE(u.ai_operations, 0), COALESCE(u.api_calls, 0)
FROM subscriptions s
LEFT JOIN usage_counters u ON u.user_id = s.user_id AND u.period = $2
WHERE s.user_id = $1`

	querySelectUsage = `SELECT files_processed, storage_used_bytes, ai_operations, api_calls
FROM usage_counters WHERE user_id = $1 AND period = $2`

	queryInsertSubscription = `INSERT INTO subscriptions (user_id, plan_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (user_id) DO NOTHING`

	queryUpdateStatus = `UPDATE subscriptions SET
	status = $2,
	cancel_at_period_end = COALESCE($3, cancel_at_period_end),
	cancelled_at = CASE WHEN $4::boolean THEN NULL ELSE COALESCE($5, cancelled_at) END,
	current_period_end = COALESCE($6, current_period_end),
	updated_at = $7
WHERE user_id = $1`

	queryUpdatePlan = `UPDATE subscriptions SET plan_id = $2, updated_at = $3 WHERE user_id = $1`

	queryIncrementUsage = `SELECT increment_usage($1, $2, $3, $4, $5, $6)`

	queryUpsertUsage = `INSERT INTO usage_counters (user_id, period, files_processed, storage_used_bytes, ai_operations, api_calls, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, period) DO UPDATE SET
	files_processed = EXCLUDED.files_processed,
	storage_used_bytes = EXCLUDED.storage_used_bytes,
	ai_operations = EXCLUDED.ai_operations,
	api_calls = EXCLUDED.api_calls,
	updated_at = EXCLUDED.updated_at`
)

// Store is a PostgreSQL-backed subscription.Store.
// Atomic increments go through the increment_usage() SQL function.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store over db. Use pg.OpenDB to obtain db from a pgx pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, querySelectSubscription, userID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("select subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) GetWithUsage(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Subscription, *subscription.Usage, error) {
	var (
		sub         subscription.Subscription
		status      string
		periodEnd   sql.NullTime
		cancelledAt sql.NullTime
		usage       = subscription.ZeroUsage(userID, period)
	)

	err := s.db.QueryRowContext(ctx, querySelectWithUsage, userID, string(period)).Scan(
		&sub.UserID, &sub.PlanID, &status, &periodEnd, &sub.CancelAtPeriodEnd,
		&cancelledAt, &sub.CreatedAt, &sub.UpdatedAt,
		&usage.FilesProcessed, &usage.StorageUsedBytes, &usage.AIOperations, &usage.APICalls,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil, subscription.ErrSubscriptionNotFound
		}
		return nil, nil, fmt.Errorf("select subscription with usage: %w", err)
	}

	if err := finishSubscription(&sub, status, periodEnd, cancelledAt); err != nil {
		return nil, nil, err
	}
	return &sub, usage, nil
}

func (s *Store) GetUsage(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Usage, error) {
	usage := subscription.ZeroUsage(userID, period)
	err := s.db.QueryRowContext(ctx, querySelectUsage, userID, string(period)).Scan(
		&usage.FilesProcessed, &usage.StorageUsedBytes, &usage.AIOperations, &usage.APICalls,
	)
	if err != nil && !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("select usage: %w", err)
	}
	return usage, nil
}

// CreateIfAbsent relies on the primary key of subscriptions: a conflicting
// insert is a no-op and the existing row is read back.
func (s *Store) CreateIfAbsent(ctx context.Context, userID uuid.UUID, planID string, status subscription.Status) (*subscription.Subscription, error) {
	_, err := s.db.ExecContext(ctx, queryInsertSubscription, userID, planID, string(status), s.now())
	if err != nil && !pg.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *Store) UpdateStatus(ctx context.Context, userID uuid.UUID, status subscription.Status, extra subscription.StatusUpdate) error {
	var (
		cancelAtEnd sql.NullBool
		cancelledAt sql.NullTime
		periodEnd   sql.NullTime
	)
	if extra.CancelAtPeriodEnd != nil {
		cancelAtEnd = sql.NullBool{Bool: *extra.CancelAtPeriodEnd, Valid: true}
	}
	if extra.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *extra.CancelledAt, Valid: true}
	}
	if extra.CurrentPeriodEnd != nil {
		periodEnd = sql.NullTime{Time: *extra.CurrentPeriodEnd, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, queryUpdateStatus,
		userID, string(status), cancelAtEnd, extra.ClearCancelledAt, cancelledAt, periodEnd, s.now(),
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) error {
	res, err := s.db.ExecContext(ctx, queryUpdatePlan, userID, planID, s.now())
	if err != nil {
		return fmt.Errorf("update subscription plan: %w", err)
	}
	return requireRow(res)
}

func (s *Store) IncrementUsage(ctx context.Context, userID uuid.UUID, period subscription.Period, delta subscription.Delta) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, queryIncrementUsage,
		userID, string(period), delta.FilesProcessed, delta.StorageUsedBytes, delta.AIOperations, delta.APICalls,
	)
	if err != nil {
		if pg.IsUndefinedFunctionError(err) {
			return errors.Join(ErrIncrementFunctionMissing, err)
		}
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// IncrementUsageNonAtomic reads the counters and writes back absolute values.
// Concurrent calls can overwrite each other.
func (s *Store) IncrementUsageNonAtomic(ctx context.Context, userID uuid.UUID, period subscription.Period, delta subscription.Delta) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	current, err := s.GetUsage(ctx, userID, period)
	if err != nil {
		return err
	}
	next := current.Apply(delta)

	_, err = s.db.ExecContext(ctx, queryUpsertUsage,
		userID, string(period), next.FilesProcessed, next.StorageUsedBytes, next.AIOperations, next.APICalls, s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}
	return nil
}

func scanSubscription(row *sql.Row) (*subscription.Subscription, error) {
	var (
		sub         subscription.Subscription
		status      string
		periodEnd   sql.NullTime
		cancelledAt sql.NullTime
	)
	if err := row.Scan(
		&sub.UserID, &sub.PlanID, &status, &periodEnd, &sub.CancelAtPeriodEnd,
		&cancelledAt, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := finishSubscription(&sub, status, periodEnd, cancelledAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

func finishSubscription(sub *subscription.Subscription, status string, periodEnd, cancelledAt sql.NullTime) error {
	st, err := subscription.ParseStatus(status)
	if err != nil {
		return err
	}
	sub.Status = st
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		sub.CurrentPeriodEnd = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		sub.CancelledAt = &t
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}
