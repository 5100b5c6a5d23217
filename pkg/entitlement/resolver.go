package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/metrics"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// DefaultStoreTimeout bounds each store call made while resolving.
const DefaultStoreTimeout = 2 * time.Second

// Degradation reasons reported to metrics.
const (
	reasonStoreUnavailable = "store_unavailable"
	reasonProvisionFailed  = "provision_failed"
	reasonUnknownPlan      = "unknown_plan"
)

// Resolver turns a user identity into a Resolved view. It never fails:
// storage errors produce the default plan with zeroed usage.
type Resolver struct {
	store   subscription.Store
	catalog *plans.Catalog
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for degraded resolutions and lazy transitions.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics reports resolution latency and degradations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithStoreTimeout bounds every individual store call. Non-positive values are ignored.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver. The catalog must contain its default plan,
// since every fallback path resolves to it.
func NewResolver(store subscription.Store, catalog *plans.Catalog, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if err := catalog.Verify(catalog.DefaultID()); err != nil {
		return nil, errors.Join(plans.ErrDefaultPlanMissing, err)
	}

	r := &Resolver{
		store:   store,
		catalog: catalog,
		log:     logger.Discard(),
		timeout: DefaultStoreTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("entitlement"))
	return r, nil
}

// Resolve returns the user's subscription, plan limits and current-period usage.
//
// The combined read is tried first, then separate reads. A missing record is
// provisioned on the default plan. An active subscription past its period end
// is reported as lapsed, and the new status is persisted on a best-effort basis.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) *Resolved {
	start := time.Now()
	defer func() { r.metrics.Resolved(time.Since(start)) }()

	now := r.now()
	period := subscription.PeriodOf(now)

	sub, usage, err := r.read(ctx, userID, period)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return r.provision(ctx, userID, now, period)
	case err != nil:
		r.log.WarnContext(ctx, "entitlement store unavailable, using default plan",
			logger.UserID(userID), logger.Error(err))
		r.metrics.Degraded(reasonStoreUnavailable)
		return r.fallback(userID, period)
	}

	resolved := &Resolved{
		Subscription: *sub,
		Usage:        *usage,
		Period:       period,
	}

	plan, err := r.catalog.Get(sub.PlanID)
	if err != nil {
		r.log.ErrorContext(ctx, "subscription references unknown plan, using default limits",
			logger.UserID(userID), logger.PlanID(sub.PlanID), logger.Error(err))
		r.metrics.Degraded(reasonUnknownPlan)
		plan = r.catalog.Default()
		resolved.Degraded = true
	}
	resolved.Plan = plan

	if sub.PeriodEndedAt(now) {
		resolved.Subscription.Status = r.lapse(ctx, sub)
	}

	return resolved
}

// read tries the combined query, then separate reads. NotFound from the
// combined query is authoritative and is not retried.
func (r *Resolver) read(ctx context.Context, userID uuid.UUID, period subscription.Period) (*subscription.Subscription, *subscription.Usage, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	sub, usage, err := r.store.GetWithUsage(cctx, userID, period)
	cancel()
	if err == nil || errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return sub, usage, err
	}

	r.log.DebugContext(ctx, "combined read failed, falling back to separate reads",
		logger.UserID(userID), logger.Error(err))

	cctx, cancel = context.WithTimeout(ctx, r.timeout)
	sub, err = r.store.Get(cctx, userID)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	cctx, cancel = context.WithTimeout(ctx, r.timeout)
	usage, err = r.store.GetUsage(cctx, userID, period)
	cancel()
	if err != nil {
		return nil, nil, err
	}
	return sub, usage, nil
}

// provision creates the default subscription for a first-time user.
// A concurrent creator may win; its row is used as returned, and the usage
// it has already recorded is read back.
func (r *Resolver) provision(ctx context.Context, userID uuid.UUID, now time.Time, period subscription.Period) *Resolved {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sub, err := r.store.CreateIfAbsent(cctx, userID, r.catalog.DefaultID(), subscription.StatusActive)
	if err != nil {
		r.log.WarnContext(ctx, "failed to provision default subscription",
			logger.UserID(userID), logger.Error(err))
		r.metrics.Degraded(reasonProvisionFailed)
		return r.fallback(userID, period)
	}
	r.metrics.Provisioned()

	plan, err := r.catalog.Get(sub.PlanID)
	if err != nil {
		plan = r.catalog.Default()
	}

	usage := subscription.ZeroUsage(userID, period)
	if sub.CreatedAt.Before(now) {
		ucctx, ucancel := context.WithTimeout(ctx, r.timeout)
		existing, err := r.store.GetUsage(ucctx, userID, period)
		ucancel()
		if err != nil {
			r.log.DebugContext(ctx, "failed to read usage of concurrently provisioned subscription",
				logger.UserID(userID), logger.Error(err))
		} else if existing != nil {
			usage = existing
		}
	}

	return &Resolved{
		Subscription: *sub,
		Plan:         plan,
		Usage:        *usage,
		Period:       period,
	}
}

// lapse persists the lapsed status of sub and returns it regardless of the write outcome.
func (r *Resolver) lapse(ctx context.Context, sub *subscription.Subscription) subscription.Status {
	status := sub.LapsedStatus()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	extra := subscription.StatusUpdate{}
	if status == subscription.StatusCancelled {
		at := *sub.CurrentPeriodEnd
		no := false
		extra.CancelledAt = &at
		extra.CancelAtPeriodEnd = &no
	}

	err := r.store.UpdateStatus(cctx, sub.UserID, status, extra)
	if err != nil {
		r.log.WarnContext(ctx, "failed to persist lapsed subscription status",
			logger.UserID(sub.UserID), logger.Status(string(status)), logger.Error(err))
	} else {
		r.log.InfoContext(ctx, "subscription lapsed at period end",
			logger.UserID(sub.UserID), logger.PlanID(sub.PlanID), logger.Status(string(status)))
	}
	r.metrics.LazyTransition(string(status), err == nil)
	return status
}

// fallback synthesizes the default-plan view used when the store cannot answer.
func (r *Resolver) fallback(userID uuid.UUID, period subscription.Period) *Resolved {
	plan := r.catalog.Default()
	return &Resolved{
		Subscription: subscription.Subscription{
			UserID: userID,
			PlanID: plan.ID,
			Status: subscription.StatusActive,
		},
		Plan:     plan,
		Usage:    *subscription.ZeroUsage(userID, period),
		Period:   period,
		Degraded: true,
	}
}
