package quota

import (
	"fmt"

	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/plans"
)

// Check decides whether increment more units of lt fit into the resolved
// plan for the current period. It performs no I/O.
//
// An increment equal to the remaining allowance is admitted; one unit more is not.
// A negative increment is an error.
func Check(r *entitlement.Resolved, lt LimitType, increment int64) (Decision, error) {
	if r == nil {
		return Decision{}, ErrNoResolution
	}
	if increment < 0 {
		return Decision{}, fmt.Errorf("%w: %d", ErrNegativeAmount, increment)
	}

	limit, err := lt.LimitOf(r.Limits())
	if err != nil {
		return Decision{}, err
	}
	current, err := lt.CurrentOf(r.Usage)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		LimitType: lt,
		Limit:     limit,
		Current:   current,
		Requested: increment,
		Plan:      r.PlanID(),
	}

	if limit == plans.Unlimited {
		d.Allowed = true
		d.Remaining = plans.Unlimited
		return d, nil
	}

	d.Remaining = max(0, limit-current)
	d.Allowed = increment <= d.Remaining
	return d, nil
}

// CheckFeature reports whether the resolved plan grants feature.
func CheckFeature(r *entitlement.Resolved, catalog *plans.Catalog, feature plans.Feature) FeatureDecision {
	d := FeatureDecision{Feature: feature}
	if r == nil {
		return d
	}
	d.Plan = r.PlanID()
	if catalog != nil {
		d.HasAccess = catalog.HasFeature(d.Plan, feature)
	} else {
		d.HasAccess = r.Plan.HasFeature(feature)
	}
	return d
}
