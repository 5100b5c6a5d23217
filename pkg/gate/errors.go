package gate

import "errors"

var (
	ErrAuthenticationMissing = errors.New("gate: authentication missing")
	ErrResolverRequired      = errors.New("gate: entitlement resolver is required")
	ErrCatalogRequired       = errors.New("gate: plan catalog is required")
	ErrNoState               = errors.New("gate: admission state missing from context")
	ErrInvalidAmount         = errors.New("gate: invalid requested amount")
	ErrMultipartRead         = errors.New("gate: failed to read multipart form")
)

// Rejection codes carried in the "error" field of rejection bodies.
const (
	CodeAuthenticationRequired = "authentication_required"
	CodeSubscriptionInactive   = "subscription_inactive"
	CodeQuotaExceeded          = "quota_exceeded"
	CodeFileTooLarge           = "file_too_large"
	CodePlanRequired           = "plan_upgrade_required"
	CodeFeatureNotEntitled     = "feature_not_available"
	CodeBatchTooLarge          = "batch_too_large"
	CodeInvalidRequest         = "invalid_request"
	CodeInternal               = "internal_error"
)
