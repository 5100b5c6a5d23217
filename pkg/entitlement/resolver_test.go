package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, userID)
	sub, _ := args.Get(0).(*subscription.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) GetWithUsage(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Subscription, *subscription.Usage, error) {
	args := m.Called(ctx, userID, period)
	sub, _ := args.Get(0).(*subscription.Subscription)
	usage, _ := args.Get(1).(*subscription.Usage)
	return sub, usage, args.Error(2)
}

func (m *mockStore) GetUsage(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Usage, error) {
	args := m.Called(ctx, userID, period)
	usage, _ := args.Get(0).(*subscription.Usage)
	return usage, args.Error(1)
}

func (m *mockStore) CreateIfAbsent(ctx context.Context, userID uuid.UUID, planID string, status subscription.Status) (*subscription.Subscription, error) {
	args := m.Called(ctx, userID, planID, status)
	sub, _ := args.Get(0).(*subscription.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) UpdateStatus(ctx context.Context, userID uuid.UUID, status subscription.Status, extra subscription.StatusUpdate) error {
	return m.Called(ctx, userID, status, extra).Error(0)
}

func (m *mockStore) UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) error {
	return m.Called(ctx, userID, planID).Error(0)
}

func (m *mockStore) IncrementUsage(ctx context.Context, userID uuid.UUID, period subscription.Period, delta subscription.Delta) error {
	return m.Called(ctx, userID, period, delta).Error(0)
}

var (
	errBoom = errors.New("connection refused")
	now     = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	period  = subscription.PeriodOf(now)
)

func newResolver(t *testing.T, store subscription.Store) *entitlement.Resolver {
	t.Helper()

	r, err := entitlement.NewResolver(store, plans.MustCatalog(),
		entitlement.WithClock(func() time.Time { return now }),
		entitlement.WithStoreTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	return r
}

func TestNewResolver(t *testing.T) {
	t.Parallel()

	_, err := entitlement.NewResolver(nil, plans.MustCatalog())
	assert.ErrorIs(t, err, entitlement.ErrStoreRequired)

	_, err = entitlement.NewResolver(subscription.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, entitlement.ErrCatalogRequired)
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	t.Run("existing subscription with usage", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{UserID: userID, PlanID: "basic", Status: subscription.StatusActive})
		require.NoError(t, mem.IncrementUsage(context.Background(), userID, period, subscription.Delta{FilesProcessed: 49}))

		got := newResolver(t, mem).Resolve(context.Background(), userID)

		assert.True(t, got.IsValid())
		assert.False(t, got.Degraded)
		assert.Equal(t, "basic", got.PlanID())
		assert.Equal(t, int64(50), got.Limits().FilesPerMonth)
		assert.Equal(t, int64(49), got.Usage.FilesProcessed)
		assert.Equal(t, period, got.Period)
	})

	t.Run("first access provisions the default plan", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		mem := subscription.NewMemoryStore()

		got := newResolver(t, mem).Resolve(context.Background(), userID)

		assert.Equal(t, plans.DefaultPlanID, got.PlanID())
		assert.Equal(t, subscription.StatusActive, got.Subscription.Status)
		assert.Zero(t, got.Usage.FilesProcessed)
		assert.False(t, got.Degraded)

		stored, err := mem.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, plans.DefaultPlanID, stored.PlanID)
	})

	t.Run("combined read failure falls back to separate reads", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(nil, nil, errBoom)
		store.On("Get", mock.Anything, userID).
			Return(&subscription.Subscription{UserID: userID, PlanID: "pro", Status: subscription.StatusActive}, nil)
		store.On("GetUsage", mock.Anything, userID, period).
			Return(&subscription.Usage{UserID: userID, Period: period, AIOperations: 7}, nil)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.False(t, got.Degraded)
		assert.Equal(t, "pro", got.PlanID())
		assert.Equal(t, int64(7), got.Usage.AIOperations)
		store.AssertExpectations(t)
	})

	t.Run("store outage yields degraded default view", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(nil, nil, errBoom)
		store.On("Get", mock.Anything, userID).Return(nil, errBoom)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		require.NotNil(t, got)
		assert.True(t, got.Degraded)
		assert.True(t, got.IsValid())
		assert.Equal(t, plans.DefaultPlanID, got.PlanID())
		assert.Zero(t, got.Usage.APICalls)
		store.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provisioning failure degrades", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(nil, nil, subscription.ErrSubscriptionNotFound)
		store.On("CreateIfAbsent", mock.Anything, userID, plans.DefaultPlanID, subscription.StatusActive).Return(nil, errBoom)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.True(t, got.Degraded)
		assert.Equal(t, plans.DefaultPlanID, got.PlanID())
		store.AssertExpectations(t)
	})

	t.Run("losing a provisioning race reads back existing usage", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(nil, nil, subscription.ErrSubscriptionNotFound)
		store.On("CreateIfAbsent", mock.Anything, userID, plans.DefaultPlanID, subscription.StatusActive).Return(
			&subscription.Subscription{UserID: userID, PlanID: plans.DefaultPlanID, Status: subscription.StatusActive, CreatedAt: now.Add(-time.Second)},
			nil,
		)
		store.On("GetUsage", mock.Anything, userID, period).Return(
			&subscription.Usage{UserID: userID, Period: period, FilesProcessed: 7},
			nil,
		)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.False(t, got.Degraded)
		assert.Equal(t, int64(7), got.Usage.FilesProcessed)
		store.AssertExpectations(t)
	})

	t.Run("usage read-back failure keeps zero usage", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(nil, nil, subscription.ErrSubscriptionNotFound)
		store.On("CreateIfAbsent", mock.Anything, userID, plans.DefaultPlanID, subscription.StatusActive).Return(
			&subscription.Subscription{UserID: userID, PlanID: plans.DefaultPlanID, Status: subscription.StatusActive, CreatedAt: now.Add(-time.Hour)},
			nil,
		)
		store.On("GetUsage", mock.Anything, userID, period).Return(nil, errBoom)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.False(t, got.Degraded)
		assert.True(t, got.IsValid())
		assert.Zero(t, got.Usage.FilesProcessed)
		store.AssertExpectations(t)
	})

	t.Run("freshly created row skips the usage read", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(nil, nil, subscription.ErrSubscriptionNotFound)
		store.On("CreateIfAbsent", mock.Anything, userID, plans.DefaultPlanID, subscription.StatusActive).Return(
			&subscription.Subscription{UserID: userID, PlanID: plans.DefaultPlanID, Status: subscription.StatusActive, CreatedAt: now},
			nil,
		)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.Zero(t, got.Usage.FilesProcessed)
		store.AssertNotCalled(t, "GetUsage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown stored plan resolves to default limits", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{UserID: userID, PlanID: "legacy", Status: subscription.StatusActive})

		got := newResolver(t, mem).Resolve(context.Background(), userID)

		assert.True(t, got.Degraded)
		assert.Equal(t, plans.DefaultPlanID, got.PlanID())
		assert.Equal(t, "legacy", got.Subscription.PlanID)
	})

	t.Run("slow store hits the timeout", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, nil, context.DeadlineExceeded)
		store.On("Get", mock.Anything, userID).Return(nil, context.DeadlineExceeded)

		start := time.Now()
		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.True(t, got.Degraded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestResolver_LazyLapse(t *testing.T) {
	t.Parallel()

	ended := now.Add(-time.Hour)

	t.Run("active past period end becomes expired", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{
			UserID:           userID,
			PlanID:           "pro",
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: &ended,
		})

		got := newResolver(t, mem).Resolve(context.Background(), userID)

		assert.Equal(t, subscription.StatusExpired, got.Subscription.Status)
		assert.False(t, got.IsValid())

		stored, err := mem.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, stored.Status)
	})

	t.Run("deferred cancellation becomes cancelled", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{
			UserID:            userID,
			PlanID:            "pro",
			Status:            subscription.StatusActive,
			CurrentPeriodEnd:  &ended,
			CancelAtPeriodEnd: true,
		})

		got := newResolver(t, mem).Resolve(context.Background(), userID)

		assert.Equal(t, subscription.StatusCancelled, got.Subscription.Status)

		stored, err := mem.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCancelled, stored.Status)
		require.NotNil(t, stored.CancelledAt)
		assert.False(t, stored.CancelAtPeriodEnd)
	})

	t.Run("trial with deferred cancellation becomes cancelled", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		end := now.AddDate(0, 0, 5)
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{
			UserID:           userID,
			PlanID:           "pro",
			Status:           subscription.StatusTrialing,
			CurrentPeriodEnd: &end,
		})

		lc := subscription.NewLifecycle(mem, subscription.WithClock(func() time.Time { return now }))
		_, err := lc.ScheduleCancel(context.Background(), userID)
		require.NoError(t, err)

		r, err := entitlement.NewResolver(mem, plans.MustCatalog(),
			entitlement.WithClock(func() time.Time { return now.AddDate(0, 2, 0) }),
		)
		require.NoError(t, err)

		got := r.Resolve(context.Background(), userID)

		assert.Equal(t, subscription.StatusCancelled, got.Subscription.Status)
		assert.False(t, got.IsValid())

		stored, err := mem.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCancelled, stored.Status)
		assert.False(t, stored.CancelAtPeriodEnd)
	})

	t.Run("trial past period end without cancellation stays trialing", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{
			UserID:           userID,
			PlanID:           "pro",
			Status:           subscription.StatusTrialing,
			CurrentPeriodEnd: &ended,
		})

		got := newResolver(t, mem).Resolve(context.Background(), userID)

		assert.Equal(t, subscription.StatusTrialing, got.Subscription.Status)
	})

	t.Run("failed write still reports lapsed status", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := &mockStore{}
		store.On("GetWithUsage", mock.Anything, userID, period).Return(
			&subscription.Subscription{UserID: userID, PlanID: "basic", Status: subscription.StatusActive, CurrentPeriodEnd: &ended},
			subscription.ZeroUsage(userID, period),
			nil,
		)
		store.On("UpdateStatus", mock.Anything, userID, subscription.StatusExpired, mock.Anything).Return(errBoom)

		got := newResolver(t, store).Resolve(context.Background(), userID)

		assert.Equal(t, subscription.StatusExpired, got.Subscription.Status)
		assert.False(t, got.Degraded)
		store.AssertExpectations(t)
	})

	t.Run("future period end stays active", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		future := now.Add(24 * time.Hour)
		mem := subscription.NewMemoryStore()
		mem.Put(&subscription.Subscription{
			UserID:           userID,
			PlanID:           "pro",
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: &future,
		})

		got := newResolver(t, mem).Resolve(context.Background(), userID)
		assert.Equal(t, subscription.StatusActive, got.Subscription.Status)
	})
}
