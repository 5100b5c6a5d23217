package quota

import "errors"

var (
	ErrInvalidLimitType = errors.New("quota: invalid limit type")
	ErrNoResolution     = errors.New("quota: entitlements not resolved")
	ErrNegativeAmount   = errors.New("quota: negative increment")
)
