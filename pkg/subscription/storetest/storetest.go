// Package storetest provides a conformance suite for subscription.Store implementations.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) subscription.Store

// Run exercises the Store contract against implementations produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	period := subscription.Period("2025-03")

	t.Run("get missing subscription", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), uuid.New())
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

		_, _, err = store.GetWithUsage(context.Background(), uuid.New(), period)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("create if absent keeps first record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		userID := uuid.New()

		first, err := store.CreateIfAbsent(ctx, userID, "free", subscription.StatusActive)
		require.NoError(t, err)
		assert.Equal(t, "free", first.PlanID)
		assert.Equal(t, subscription.StatusActive, first.Status)

		second, err := store.CreateIfAbsent(ctx, userID, "pro", subscription.StatusTrialing)
		require.NoError(t, err)
		assert.Equal(t, "free", second.PlanID)
		assert.Equal(t, subscription.StatusActive, second.Status)
	})

	t.Run("concurrent create if absent yields one record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		userID := uuid.New()

		const n = 20
		results := make([]*subscription.Subscription, n)
		errs := make([]error, n)

		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = store.CreateIfAbsent(ctx, userID, "free", subscription.StatusActive)
			}(i)
		}
		wg.Wait()

		for i := range n {
			require.NoError(t, errs[i])
			assert.Equal(t, results[0].CreatedAt.Unix(), results[i].CreatedAt.Unix())
			assert.Equal(t, userID, results[i].UserID)
		}
	})

	t.Run("usage defaults to zero", func(t *testing.T) {
		store := newStore(t)
		userID := uuid.New()

		u, err := store.GetUsage(context.Background(), userID, period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), u.FilesProcessed)
		assert.Equal(t, int64(0), u.APICalls)
	})

	t.Run("combined read returns usage of the period", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		userID := uuid.New()

		_, err := store.CreateIfAbsent(ctx, userID, "basic", subscription.StatusActive)
		require.NoError(t, err)
		require.NoError(t, store.IncrementUsage(ctx, userID, period, subscription.Delta{FilesProcessed: 3, StorageUsedBytes: 1024}))
		require.NoError(t, store.IncrementUsage(ctx, userID, "2025-04", subscription.Delta{FilesProcessed: 7}))

		sub, u, err := store.GetWithUsage(ctx, userID, period)
		require.NoError(t, err)
		assert.Equal(t, "basic", sub.PlanID)
		assert.Equal(t, int64(3), u.FilesProcessed)
		assert.Equal(t, int64(1024), u.StorageUsedBytes)
	})

	t.Run("concurrent increments are additive", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		userID := uuid.New()

		require.NoError(t, store.IncrementUsage(ctx, userID, period, subscription.Delta{AIOperations: 5}))

		const m = 50
		var wg sync.WaitGroup
		for range m {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.IncrementUsage(ctx, userID, period, subscription.Delta{AIOperations: 2, APICalls: 1}))
			}()
		}
		wg.Wait()

		u, err := store.GetUsage(ctx, userID, period)
		require.NoError(t, err)
		assert.Equal(t, int64(5+m*2), u.AIOperations)
		assert.Equal(t, int64(m), u.APICalls)
	})

	t.Run("negative delta rejected", func(t *testing.T) {
		store := newStore(t)

		err := store.IncrementUsage(context.Background(), uuid.New(), period, subscription.Delta{FilesProcessed: -1})
		assert.ErrorIs(t, err, subscription.ErrNegativeDelta)
	})

	t.Run("update status and plan", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		userID := uuid.New()

		_, err := store.CreateIfAbsent(ctx, userID, "free", subscription.StatusActive)
		require.NoError(t, err)

		end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		yes := true
		require.NoError(t, store.UpdateStatus(ctx, userID, subscription.StatusActive, subscription.StatusUpdate{
			CancelAtPeriodEnd: &yes,
			CurrentPeriodEnd:  &end,
		}))
		require.NoError(t, store.UpdatePlan(ctx, userID, "pro"))

		sub, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "pro", sub.PlanID)
		assert.True(t, sub.CancelAtPeriodEnd)
		require.NotNil(t, sub.CurrentPeriodEnd)
		assert.True(t, end.Equal(*sub.CurrentPeriodEnd))
	})

	t.Run("update missing subscription", func(t *testing.T) {
		store := newStore(t)

		err := store.UpdateStatus(context.Background(), uuid.New(), subscription.StatusExpired, subscription.StatusUpdate{})
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

		err = store.UpdatePlan(context.Background(), uuid.New(), "pro")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("fallback increment persists", func(t *testing.T) {
		store := newStore(t)
		fb, ok := store.(subscription.FallbackIncrementer)
		if !ok {
			t.Skip("store has no fallback path")
		}
		ctx := context.Background()
		userID := uuid.New()

		require.NoError(t, store.IncrementUsage(ctx, userID, period, subscription.Delta{FilesProcessed: 1}))
		require.NoError(t, fb.IncrementUsageNonAtomic(ctx, userID, period, subscription.Delta{FilesProcessed: 2}))

		u, err := store.GetUsage(ctx, userID, period)
		require.NoError(t, err)
		assert.Equal(t, int64(3), u.FilesProcessed)
	})
}
