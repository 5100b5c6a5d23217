package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidStatus        = errors.New("invalid subscription status")
	ErrInvalidTransition    = errors.New("invalid subscription state transition")
	ErrInvalidPeriod        = errors.New("invalid billing period")
	ErrNegativeDelta        = errors.New("usage delta must not be negative")
	ErrFallbackUnsupported  = errors.New("store does not support non-atomic usage increment")
	ErrPlanNotAllowed       = errors.New("subscription plan is not in the catalog")
)
