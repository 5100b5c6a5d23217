package subscription

import "github.com/google/uuid"

// Usage holds a user's consumption counters for one billing period.
type Usage struct {
	UserID           uuid.UUID `json:"userId"`
	Period           Period    `json:"period"`
	FilesProcessed   int64     `json:"filesProcessed"`
	StorageUsedBytes int64     `json:"storageUsedBytes"`
	AIOperations     int64     `json:"aiOperations"`
	APICalls         int64     `json:"apiCalls"`
}

// ZeroUsage returns empty counters for the given user and period.
func ZeroUsage(userID uuid.UUID, period Period) *Usage {
	return &Usage{UserID: userID, Period: period}
}

// Apply returns a copy of u with d added.
func (u Usage) Apply(d Delta) Usage {
	u.FilesProcessed += d.FilesProcessed
	u.StorageUsedBytes += d.StorageUsedBytes
	u.AIOperations += d.AIOperations
	u.APICalls += d.APICalls
	return u
}

// Delta is a per-dimension increment applied to usage counters.
type Delta struct {
	FilesProcessed   int64 `json:"filesProcessed,omitempty"`
	StorageUsedBytes int64 `json:"storageUsedBytes,omitempty"`
	AIOperations     int64 `json:"aiOperations,omitempty"`
	APICalls         int64 `json:"apiCalls,omitempty"`
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Validate rejects negative components; counters never decrease within a period.
func (d Delta) Validate() error {
	if d.FilesProcessed < 0 || d.StorageUsedBytes < 0 || d.AIOperations < 0 || d.APICalls < 0 {
		return ErrNegativeDelta
	}
	return nil
}
