package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription represents a user's subscription to a plan.
// Each user has exactly one subscription record.
type Subscription struct {
	UserID            uuid.UUID  `json:"userId"` // Primary key - one subscription per user
	PlanID            string     `json:"plan"`
	Status            Status     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"` // nil for plans without a billing period
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsValid returns true if the subscription grants access (active or trialing).
func (s *Subscription) IsValid() bool {
	return s != nil && s.Status.Entitled()
}

// IsCancelled returns true if the subscription is cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// PeriodEndedAt reports whether the billing period has passed at now for a
// subscription that lapses: any active one, or a trialing one with a deferred cancellation.
func (s *Subscription) PeriodEndedAt(now time.Time) bool {
	if s.CurrentPeriodEnd == nil || !now.After(*s.CurrentPeriodEnd) {
		return false
	}
	switch s.Status {
	case StatusActive:
		return true
	case StatusTrialing:
		return s.CancelAtPeriodEnd
	}
	return false
}

// LapsedStatus returns the status a subscription moves to once its period ends:
// cancelled when cancellation was deferred to period end, expired otherwise.
func (s *Subscription) LapsedStatus() Status {
	if s.CancelAtPeriodEnd {
		return StatusCancelled
	}
	return StatusExpired
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CurrentPeriodEnd != nil {
		t := *s.CurrentPeriodEnd
		cp.CurrentPeriodEnd = &t
	}
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}
