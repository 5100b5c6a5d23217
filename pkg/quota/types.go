package quota

import (
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// LimitType names a metered quota dimension.
type LimitType string

// Metered dimensions.
const (
	Files        LimitType = "files"
	Storage      LimitType = "storage"
	AIOperations LimitType = "ai"
	APICalls     LimitType = "api"
)

// LimitTypes lists every dimension in display order.
var LimitTypes = []LimitType{Files, Storage, AIOperations, APICalls}

// ParseLimitType converts a wire name into a LimitType.
func ParseLimitType(v string) (LimitType, error) {
	lt := LimitType(v)
	if !lt.Valid() {
		return "", ErrInvalidLimitType
	}
	return lt, nil
}

// Valid reports whether lt is one of the defined dimensions.
func (lt LimitType) Valid() bool {
	switch lt {
	case Files, Storage, AIOperations, APICalls:
		return true
	}
	return false
}

func (lt LimitType) String() string { return string(lt) }

// LimitOf returns the cap of the dimension in l.
func (lt LimitType) LimitOf(l plans.Limits) (int64, error) {
	switch lt {
	case Files:
		return l.FilesPerMonth, nil
	case Storage:
		return l.StorageBytes, nil
	case AIOperations:
		return l.AIOperations, nil
	case APICalls:
		return l.APICalls, nil
	}
	return 0, ErrInvalidLimitType
}

// CurrentOf returns the counter of the dimension in u.
func (lt LimitType) CurrentOf(u subscription.Usage) (int64, error) {
	switch lt {
	case Files:
		return u.FilesProcessed, nil
	case Storage:
		return u.StorageUsedBytes, nil
	case AIOperations:
		return u.AIOperations, nil
	case APICalls:
		return u.APICalls, nil
	}
	return 0, ErrInvalidLimitType
}

// Decision is the outcome of a quota check. Remaining is plans.Unlimited for
// uncapped dimensions.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	LimitType LimitType `json:"limitType"`
	Limit     int64     `json:"limit"`
	Current   int64     `json:"current"`
	Remaining int64     `json:"remaining"`
	Requested int64     `json:"requested"`
	Plan      string    `json:"plan"`
}

// Unlimited reports whether the checked dimension has no cap.
func (d Decision) Unlimited() bool {
	return d.Limit == plans.Unlimited
}

// FeatureDecision is the outcome of a feature check.
type FeatureDecision struct {
	Feature   plans.Feature `json:"feature"`
	HasAccess bool          `json:"hasAccess"`
	Plan      string        `json:"plan"`
}
