package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for subscription and usage persistence.
// Each user has exactly one subscription, so UserID serves as the primary key.
type Store interface {
	// Get retrieves a subscription by user ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetWithUsage reads the subscription and the period's counters in a single round trip.
	// Returns ErrSubscriptionNotFound if no subscription exists; usage is zeroed when absent.
	GetWithUsage(ctx context.Context, userID uuid.UUID, period Period) (*Subscription, *Usage, error)

	// GetUsage returns the period's counters, zeroed when none were recorded yet.
	GetUsage(ctx context.Context, userID uuid.UUID, period Period) (*Usage, error)

	// CreateIfAbsent inserts a subscription unless one exists and returns the stored record.
	// Concurrent calls for the same user must yield exactly one record.
	CreateIfAbsent(ctx context.Context, userID uuid.UUID, planID string, status Status) (*Subscription, error)

	// UpdateStatus changes the status and applies the optional fields of extra.
	UpdateStatus(ctx context.Context, userID uuid.UUID, status Status, extra StatusUpdate) error

	// UpdatePlan moves the subscription to another plan.
	UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) error

	// IncrementUsage adds delta to the period's counters atomically
	// with respect to concurrent increments.
	IncrementUsage(ctx context.Context, userID uuid.UUID, period Period, delta Delta) error
}

// FallbackIncrementer is implemented by stores offering a read-modify-write
// increment for when the atomic primitive is unavailable.
// Concurrent fallback increments may lose updates.
type FallbackIncrementer interface {
	IncrementUsageNonAtomic(ctx context.Context, userID uuid.UUID, period Period, delta Delta) error
}

// StatusUpdate carries optional fields changed together with a status.
// Nil fields are left untouched.
type StatusUpdate struct {
	CancelAtPeriodEnd *bool
	CancelledAt       *time.Time
	ClearCancelledAt  bool
	CurrentPeriodEnd  *time.Time
}

// Apply writes the update onto s.
func (u StatusUpdate) Apply(s *Subscription, status Status, now time.Time) {
	s.Status = status
	if u.CancelAtPeriodEnd != nil {
		s.CancelAtPeriodEnd = *u.CancelAtPeriodEnd
	}
	if u.CancelledAt != nil {
		t := *u.CancelledAt
		s.CancelledAt = &t
	}
	if u.ClearCancelledAt {
		s.CancelledAt = nil
	}
	if u.CurrentPeriodEnd != nil {
		t := *u.CurrentPeriodEnd
		s.CurrentPeriodEnd = &t
	}
	s.UpdatedAt = now
}

// PlanVerifier validates plan identifiers; *plans.Catalog satisfies it.
type PlanVerifier interface {
	Verify(planID string) error
}

// WithPlanValidation wraps a store so that creating or moving a subscription
// to a plan missing from the catalog fails with ErrPlanNotAllowed.
func WithPlanValidation(store Store, verifier PlanVerifier) Store {
	return &validatingStore{Store: store, verifier: verifier}
}

type validatingStore struct {
	Store
	verifier PlanVerifier
}

func (s *validatingStore) CreateIfAbsent(ctx context.Context, userID uuid.UUID, planID string, status Status) (*Subscription, error) {
	if err := s.verify(planID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.Store.CreateIfAbsent(ctx, userID, planID, status)
}

func (s *validatingStore) UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) error {
	if err := s.verify(planID); err != nil {
		return err
	}
	return s.Store.UpdatePlan(ctx, userID, planID)
}

func (s *validatingStore) UpdateStatus(ctx context.Context, userID uuid.UUID, status Status, extra StatusUpdate) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.Store.UpdateStatus(ctx, userID, status, extra)
}

// IncrementUsageNonAtomic forwards to the wrapped store when it supports the fallback path.
func (s *validatingStore) IncrementUsageNonAtomic(ctx context.Context, userID uuid.UUID, period Period, delta Delta) error {
	fb, ok := s.Store.(FallbackIncrementer)
	if !ok {
		return ErrFallbackUnsupported
	}
	return fb.IncrementUsageNonAtomic(ctx, userID, period, delta)
}

func (s *validatingStore) verify(planID string) error {
	if err := s.verifier.Verify(planID); err != nil {
		return errors.Join(ErrPlanNotAllowed, err)
	}
	return nil
}
