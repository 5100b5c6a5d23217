package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle trigger applied to a subscription.
type Event string

const (
	EventCancel         Event = "cancel"
	EventScheduleCancel Event = "schedule_cancel"
	EventReactivate     Event = "reactivate"
	EventLapse          Event = "lapse"
	EventChangePlan     Event = "change_plan"
)

// transitions maps [from][event] to the resulting status.
var transitions = map[Status]map[Event]Status{
	StatusActive: {
		EventCancel:         StatusCancelled,
		EventScheduleCancel: StatusActive,
		EventReactivate:     StatusActive,
		EventLapse:          StatusExpired,
		EventChangePlan:     StatusActive,
	},
	StatusTrialing: {
		EventCancel:         StatusCancelled,
		EventScheduleCancel: StatusTrialing,
		EventReactivate:     StatusTrialing,
		EventLapse:          StatusCancelled,
		EventChangePlan:     StatusTrialing,
	},
	StatusPending: {
		EventCancel: StatusCancelled,
	},
	StatusPastDue: {
		EventCancel:     StatusCancelled,
		EventChangePlan: StatusPastDue,
	},
	StatusCancelled: {
		EventReactivate: StatusActive,
	},
	StatusExpired: {},
}

// Next returns the status reached by applying event to from.
func Next(from Status, event Event) (Status, error) {
	to, ok := transitions[from][event]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// Lifecycle applies user-initiated subscription changes through a Store.
type Lifecycle struct {
	store Store
	now   func() time.Time
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithClock overrides the time source.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// NewLifecycle creates a lifecycle service. Wrap store with WithPlanValidation
// to reject unknown plans in ChangePlan.
func NewLifecycle(store Store, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cancel ends the subscription immediately.
func (l *Lifecycle) Cancel(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, next, err := l.prepare(ctx, userID, EventCancel)
	if err != nil {
		return nil, err
	}
	now := l.now()
	no := false
	if err := l.store.UpdateStatus(ctx, userID, next, StatusUpdate{
		CancelAtPeriodEnd: &no,
		CancelledAt:       &now,
	}); err != nil {
		return nil, err
	}
	return l.reload(ctx, sub.UserID)
}

// ScheduleCancel defers cancellation to the end of the current billing period.
// Subscriptions without a billing period are cancelled immediately.
func (l *Lifecycle) ScheduleCancel(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, next, err := l.prepare(ctx, userID, EventScheduleCancel)
	if err != nil {
		return nil, err
	}
	if sub.CurrentPeriodEnd == nil {
		return l.Cancel(ctx, userID)
	}
	yes := true
	if err := l.store.UpdateStatus(ctx, userID, next, StatusUpdate{CancelAtPeriodEnd: &yes}); err != nil {
		return nil, err
	}
	return l.reload(ctx, userID)
}

// Reactivate clears a deferred cancellation, or restores a cancelled
// subscription whose paid period has not ended yet.
func (l *Lifecycle) Reactivate(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, next, err := l.prepare(ctx, userID, EventReactivate)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled() && (sub.CurrentPeriodEnd == nil || !l.now().Before(*sub.CurrentPeriodEnd)) {
		return nil, fmt.Errorf("%w: billing period already ended", ErrInvalidTransition)
	}
	if sub.Status.Entitled() && !sub.CancelAtPeriodEnd {
		return sub, nil
	}
	no := false
	if err := l.store.UpdateStatus(ctx, userID, next, StatusUpdate{
		CancelAtPeriodEnd: &no,
		ClearCancelledAt:  true,
	}); err != nil {
		return nil, err
	}
	return l.reload(ctx, userID)
}

// ChangePlan moves the subscription to planID.
func (l *Lifecycle) ChangePlan(ctx context.Context, userID uuid.UUID, planID string) (*Subscription, error) {
	sub, _, err := l.prepare(ctx, userID, EventChangePlan)
	if err != nil {
		return nil, err
	}
	if sub.PlanID == planID {
		return sub, nil
	}
	if err := l.store.UpdatePlan(ctx, userID, planID); err != nil {
		return nil, err
	}
	return l.reload(ctx, userID)
}

func (l *Lifecycle) prepare(ctx context.Context, userID uuid.UUID, event Event) (*Subscription, Status, error) {
	sub, err := l.store.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	status := sub.Status
	if sub.PeriodEndedAt(l.now()) {
		status = sub.LapsedStatus()
	}
	next, err := Next(status, event)
	if err != nil {
		return nil, "", err
	}
	sub.Status = status
	return sub, next, nil
}

func (l *Lifecycle) reload(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return l.store.Get(ctx, userID)
}
