package quota_test

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/quota"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

func resolvedOn(t *testing.T, planID string, usage subscription.Usage) *entitlement.Resolved {
	t.Helper()

	plan, err := plans.MustCatalog().Get(planID)
	require.NoError(t, err)
	return &entitlement.Resolved{
		Subscription: subscription.Subscription{UserID: uuid.New(), PlanID: planID, Status: subscription.StatusActive},
		Plan:         plan,
		Usage:        usage,
		Period:       subscription.CurrentPeriod(),
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		plan          string
		usage         subscription.Usage
		limitType     quota.LimitType
		increment     int64
		wantAllowed   bool
		wantRemaining int64
	}{
		{
			name:          "basic plan with 49 of 50 files admits one more",
			plan:          "basic",
			usage:         subscription.Usage{FilesProcessed: 49},
			limitType:     quota.Files,
			increment:     1,
			wantAllowed:   true,
			wantRemaining: 1,
		},
		{
			name:          "basic plan with 49 of 50 files rejects two more",
			plan:          "basic",
			usage:         subscription.Usage{FilesProcessed: 49},
			limitType:     quota.Files,
			increment:     2,
			wantAllowed:   false,
			wantRemaining: 1,
		},
		{
			name:          "exhausted dimension rejects",
			plan:          "free",
			usage:         subscription.Usage{AIOperations: 5},
			limitType:     quota.AIOperations,
			increment:     1,
			wantAllowed:   false,
			wantRemaining: 0,
		},
		{
			name:          "overshoot clamps remaining to zero",
			plan:          "free",
			usage:         subscription.Usage{APICalls: 130},
			limitType:     quota.APICalls,
			increment:     1,
			wantAllowed:   false,
			wantRemaining: 0,
		},
		{
			name:          "zero increment at the limit is allowed",
			plan:          "free",
			usage:         subscription.Usage{FilesProcessed: 10},
			limitType:     quota.Files,
			increment:     0,
			wantAllowed:   true,
			wantRemaining: 0,
		},
		{
			name:          "unlimited dimension always admits",
			plan:          "premium",
			usage:         subscription.Usage{StorageUsedBytes: 1 << 40},
			limitType:     quota.Storage,
			increment:     1 << 40,
			wantAllowed:   true,
			wantRemaining: plans.Unlimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := quota.Check(resolvedOn(t, tt.plan, tt.usage), tt.limitType, tt.increment)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantRemaining, d.Remaining)
			assert.Equal(t, tt.plan, d.Plan)
			assert.Equal(t, tt.increment, d.Requested)
			assert.Equal(t, tt.limitType, d.LimitType)
		})
	}
}

func TestCheck_Boundary(t *testing.T) {
	t.Parallel()

	r := resolvedOn(t, "pro", subscription.Usage{FilesProcessed: 480})

	d, err := quota.Check(r, quota.Files, 20)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = quota.Check(r, quota.Files, 21)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(500), d.Limit)
	assert.Equal(t, int64(480), d.Current)
	assert.Equal(t, int64(20), d.Remaining)

	r = resolvedOn(t, "basic", subscription.Usage{StorageUsedBytes: 10})

	d, err = quota.Check(r, quota.Storage, math.MaxInt64)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(math.MaxInt64), d.Requested)

	r = resolvedOn(t, "free", subscription.Usage{FilesProcessed: 15})

	d, err = quota.Check(r, quota.Files, math.MaxInt64)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
}

func TestCheck_Errors(t *testing.T) {
	t.Parallel()

	_, err := quota.Check(resolvedOn(t, "free", subscription.Usage{}), quota.LimitType("seats"), 1)
	assert.ErrorIs(t, err, quota.ErrInvalidLimitType)

	_, err = quota.Check(nil, quota.Files, 1)
	assert.ErrorIs(t, err, quota.ErrNoResolution)

	_, err = quota.Check(resolvedOn(t, "basic", subscription.Usage{StorageUsedBytes: 10}), quota.Storage, -1<<40)
	assert.ErrorIs(t, err, quota.ErrNegativeAmount)
}

func TestParseLimitType(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"files", "storage", "ai", "api"} {
		lt, err := quota.ParseLimitType(name)
		require.NoError(t, err)
		assert.Equal(t, name, lt.String())
	}

	_, err := quota.ParseLimitType("bandwidth")
	assert.ErrorIs(t, err, quota.ErrInvalidLimitType)
}

func TestCheckFeature(t *testing.T) {
	t.Parallel()

	catalog := plans.MustCatalog()

	d := quota.CheckFeature(resolvedOn(t, "free", subscription.Usage{}), catalog, plans.FeatureOCR)
	assert.False(t, d.HasAccess)
	assert.Equal(t, "free", d.Plan)

	d = quota.CheckFeature(resolvedOn(t, "premium", subscription.Usage{}), catalog, plans.FeatureOCR)
	assert.True(t, d.HasAccess)

	d = quota.CheckFeature(nil, catalog, plans.FeatureMerge)
	assert.False(t, d.HasAccess)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	r := resolvedOn(t, "basic", subscription.Usage{FilesProcessed: 25, AIOperations: 60})

	ov, err := quota.Summarize(r)
	require.NoError(t, err)
	assert.Equal(t, "basic", ov.Plan)
	assert.Equal(t, "active", ov.Status)
	require.Len(t, ov.Dimensions, len(quota.LimitTypes))

	files := ov.Dimensions[0]
	assert.Equal(t, quota.Files, files.LimitType)
	assert.Equal(t, 50, files.Percent)
	assert.Equal(t, int64(25), files.Remaining)

	ai := ov.Dimensions[2]
	assert.Equal(t, 100, ai.Percent)
	assert.Zero(t, ai.Remaining)

	ov, err = quota.Summarize(resolvedOn(t, "premium", subscription.Usage{}))
	require.NoError(t, err)
	for _, d := range ov.Dimensions {
		assert.Equal(t, -1, d.Percent)
	}
}
