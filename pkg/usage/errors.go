package usage

import "errors"

var (
	ErrInvalidUsageType = errors.New("usage: invalid usage type")
	ErrStoreRequired    = errors.New("usage: subscription store is required")
	ErrRecordingFailed  = errors.New("usage: failed to record usage")
	ErrDispatcherClosed = errors.New("usage: dispatcher is closed")
	ErrRecorderRequired = errors.New("usage: recorder is required")
	ErrDispatchRequired = errors.New("usage: dispatcher is required")
)
