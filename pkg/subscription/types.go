package subscription

import (
	"fmt"
	"time"
)

// Status represents the current state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrialing  Status = "trialing"
	StatusPending   Status = "pending"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPending, StatusPastDue, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Entitled reports whether the status grants access to plan features.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// Period identifies a billing period as a UTC calendar month, formatted YYYY-MM.
type Period string

const periodLayout = "2006-01"

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// CurrentPeriod returns the billing period containing the current time.
func CurrentPeriod() Period {
	return PeriodOf(time.Now())
}

// Start returns the first instant of the period.
func (p Period) Start() (time.Time, error) {
	t, err := time.ParseInLocation(periodLayout, string(p), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
	return t, nil
}

func (p Period) String() string {
	return string(p)
}
