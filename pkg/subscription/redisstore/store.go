package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

const (
	fieldFiles   = "files_processed"
	fieldStorage = "storage_used_bytes"
	fieldAI      = "ai_operations"
	fieldAPI     = "api_calls"
)

// Store is a Redis-backed subscription.Store. Subscriptions are JSON strings
// created with SETNX; usage counters are hashes mutated with HINCRBY in MULTI.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	usageTTL   time.Duration
	maxRetries int
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces all keys. Default is "quotagate".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithUsageTTL expires usage hashes after ttl of inactivity. Zero keeps them forever.
func WithUsageTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.usageTTL = ttl
	}
}

// WithMaxTxRetries bounds optimistic-lock retries of subscription updates.
func WithMaxTxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		prefix:     "quotagate",
		maxRetries: 5,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) subKey(userID uuid.UUID) string {
	return s.prefix + ":sub:" + userID.String()
}

func (s *Store) usageKey(userID uuid.UUID, period subscription.Period) string {
	return s.prefix + ":usage:" + userID.String() + ":" + string(period)
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	raw, err := s.client.Get(ctx, s.subKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return decodeSubscription(raw)
}

// GetWithUsage issues GET and HGETALL in one pipeline.
func (s *Store) GetWithUsage(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Subscription, *subscription.Usage, error) {
	var (
		subCmd   *redis.StringCmd
		usageCmd *redis.MapStringStringCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		subCmd = p.Get(ctx, s.subKey(userID))
		usageCmd = p.HGetAll(ctx, s.usageKey(userID, period))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("pipeline subscription with usage: %w", err)
	}

	raw, err := subCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, subscription.ErrSubscriptionNotFound
		}
		return nil, nil, fmt.Errorf("get subscription: %w", err)
	}
	sub, err := decodeSubscription(raw)
	if err != nil {
		return nil, nil, err
	}

	fields, err := usageCmd.Result()
	if err != nil {
		return nil, nil, fmt.Errorf("get usage: %w", err)
	}
	usage, err := decodeUsage(userID, period, fields)
	if err != nil {
		return nil, nil, err
	}
	return sub, usage, nil
}

func (s *Store) GetUsage(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Usage, error) {
	fields, err := s.client.HGetAll(ctx, s.usageKey(userID, period)).Result()
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return decodeUsage(userID, period, fields)
}

// CreateIfAbsent writes the record with SETNX so only the first writer wins,
// then reads back whatever is stored.
func (s *Store) CreateIfAbsent(ctx context.Context, userID uuid.UUID, planID string, status subscription.Status) (*subscription.Subscription, error) {
	now := s.now()
	raw, err := json.Marshal(&subscription.Subscription{
		UserID:    userID,
		PlanID:    planID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode subscription: %w", err)
	}

	if err := s.client.SetNX(ctx, s.subKey(userID), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("setnx subscription: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *Store) UpdateStatus(ctx context.Context, userID uuid.UUID, status subscription.Status, extra subscription.StatusUpdate) error {
	return s.update(ctx, userID, func(sub *subscription.Subscription) {
		extra.Apply(sub, status, s.now())
	})
}

func (s *Store) UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) error {
	return s.update(ctx, userID, func(sub *subscription.Subscription) {
		sub.PlanID = planID
		sub.UpdatedAt = s.now()
	})
}

// update performs an optimistic read-modify-write guarded by WATCH.
func (s *Store) update(ctx context.Context, userID uuid.UUID, mutate func(*subscription.Subscription)) error {
	key := s.subKey(userID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return subscription.ErrSubscriptionNotFound
			}
			return err
		}
		sub, err := decodeSubscription(raw)
		if err != nil {
			return err
		}
		mutate(sub)
		next, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return fmt.Errorf("update subscription: %w", err)
		}
		return err
	}
	return ErrTooMuchContention
}

// IncrementUsage applies every non-zero component with HINCRBY inside MULTI/EXEC.
func (s *Store) IncrementUsage(ctx context.Context, userID uuid.UUID, period subscription.Period, delta subscription.Delta) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}

	key := s.usageKey(userID, period)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for field, v := range deltaFields(delta) {
			if v != 0 {
				p.HIncrBy(ctx, key, field, v)
			}
		}
		if s.usageTTL > 0 {
			p.Expire(ctx, key, s.usageTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// IncrementUsageNonAtomic reads the hash and writes absolute values back.
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

	values := make(map[string]any, 4)
	for field, v := range usageFields(next) {
		values[field] = v
	}
	if err := s.client.HSet(ctx, s.usageKey(userID, period), values).Err(); err != nil {
		return fmt.Errorf("hset usage: %w", err)
	}
	return nil
}

func deltaFields(d subscription.Delta) map[string]int64 {
	return map[string]int64{
		fieldFiles:   d.FilesProcessed,
		fieldStorage: d.StorageUsedBytes,
		fieldAI:      d.AIOperations,
		fieldAPI:     d.APICalls,
	}
}

func usageFields(u subscription.Usage) map[string]int64 {
	return map[string]int64{
		fieldFiles:   u.FilesProcessed,
		fieldStorage: u.StorageUsedBytes,
		fieldAI:      u.AIOperations,
		fieldAPI:     u.APICalls,
	}
}

func decodeSubscription(raw []byte) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, errors.Join(ErrCorruptRecord, err)
	}
	if !sub.Status.Valid() {
		return nil, errors.Join(ErrCorruptRecord, subscription.ErrInvalidStatus)
	}
	return &sub, nil
}

func decodeUsage(userID uuid.UUID, period subscription.Period, fields map[string]string) (*subscription.Usage, error) {
	usage := subscription.ZeroUsage(userID, period)
	targets := map[string]*int64{
		fieldFiles:   &usage.FilesProcessed,
		fieldStorage: &usage.StorageUsedBytes,
		fieldAI:      &usage.AIOperations,
		fieldAPI:     &usage.APICalls,
	}
	for field, raw := range fields {
		dst, ok := targets[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Join(ErrCorruptRecord, fmt.Errorf("field %s: %w", field, err))
		}
		*dst = v
	}
	return usage, nil
}
