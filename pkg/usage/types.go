package usage

import (
	"github.com/dmitrymomot/quotagate/pkg/quota"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// UsageType names a metered event.
type UsageType string

// Metered events.
const (
	FileProcessed UsageType = "file_processed"
	StorageUsed   UsageType = "storage_used"
	AIOperation   UsageType = "ai_operation"
	APICall       UsageType = "api_call"
)

// ParseUsageType converts a wire name into a UsageType.
func ParseUsageType(v string) (UsageType, error) {
	ut := UsageType(v)
	if !ut.Valid() {
		return "", ErrInvalidUsageType
	}
	return ut, nil
}

// Valid reports whether ut is one of the defined events.
func (ut UsageType) Valid() bool {
	switch ut {
	case FileProcessed, StorageUsed, AIOperation, APICall:
		return true
	}
	return false
}

func (ut UsageType) String() string { return string(ut) }

// Delta converts amount units of ut into a counter increment.
func (ut UsageType) Delta(amount int64) (subscription.Delta, error) {
	switch ut {
	case FileProcessed:
		return subscription.Delta{FilesProcessed: amount}, nil
	case StorageUsed:
		return subscription.Delta{StorageUsedBytes: amount}, nil
	case AIOperation:
		return subscription.Delta{AIOperations: amount}, nil
	case APICall:
		return subscription.Delta{APICalls: amount}, nil
	}
	return subscription.Delta{}, ErrInvalidUsageType
}

// LimitType returns the quota dimension the event counts against.
func (ut UsageType) LimitType() (quota.LimitType, error) {
	switch ut {
	case FileProcessed:
		return quota.Files, nil
	case StorageUsed:
		return quota.Storage, nil
	case AIOperation:
		return quota.AIOperations, nil
	case APICall:
		return quota.APICalls, nil
	}
	return "", ErrInvalidUsageType
}

// Metadata describes the operation behind a usage event.
// Events carrying an Action are appended to the file history.
type Metadata struct {
	Action    string
	Bytes     int64
	RequestID string
	Extra     map[string]any
}
