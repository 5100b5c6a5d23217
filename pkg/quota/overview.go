package quota

import (
	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/plans"
)

// DimensionUsage summarizes one metered dimension for dashboards.
type DimensionUsage struct {
	LimitType LimitType `json:"limitType"`
	Limit     int64     `json:"limit"`
	Current   int64     `json:"current"`
	Remaining int64     `json:"remaining"`
	// Percent is 0-100, or -1 for unlimited dimensions.
	Percent int `json:"percent"`
}

// Overview is the per-dimension usage of a resolved subscription.
type Overview struct {
	Plan       string           `json:"plan"`
	Status     string           `json:"status"`
	Period     string           `json:"period"`
	Degraded   bool             `json:"degraded,omitempty"`
	Dimensions []DimensionUsage `json:"dimensions"`
}

// Summarize builds the usage overview of r.
func Summarize(r *entitlement.Resolved) (Overview, error) {
	if r == nil {
		return Overview{}, ErrNoResolution
	}

	ov := Overview{
		Plan:       r.PlanID(),
		Status:     string(r.Subscription.Status),
		Period:     r.Period.String(),
		Degraded:   r.Degraded,
		Dimensions: make([]DimensionUsage, 0, len(LimitTypes)),
	}
	for _, lt := range LimitTypes {
		d, err := Check(r, lt, 0)
		if err != nil {
			return Overview{}, err
		}
		ov.Dimensions = append(ov.Dimensions, DimensionUsage{
			LimitType: lt,
			Limit:     d.Limit,
			Current:   d.Current,
			Remaining: d.Remaining,
			Percent:   percent(d.Current, d.Limit),
		})
	}
	return ov, nil
}

func percent(used, limit int64) int {
	if limit == plans.Unlimited {
		return -1
	}
	if limit == 0 {
		return 100
	}
	return min(int((used*100)/limit), 100)
}
