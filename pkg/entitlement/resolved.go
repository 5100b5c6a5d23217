package entitlement

import (
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// Resolved is the read-only view of a user's entitlements for one request:
// the subscription, the limits of its plan and the current period's usage.
type Resolved struct {
	Subscription subscription.Subscription `json:"subscription"`
	Plan         plans.Plan                `json:"plan"`
	Usage        subscription.Usage        `json:"usage"`
	Period       subscription.Period       `json:"period"`

	// Degraded is set when the view was synthesized because the store could
	// not be read; it then carries the default plan with zeroed usage.
	Degraded bool `json:"degraded,omitempty"`
}

// IsValid reports whether the subscription grants access (active or trialing).
func (r *Resolved) IsValid() bool {
	return r != nil && r.Subscription.Status.Entitled()
}

// PlanID returns the ID of the resolved plan.
func (r *Resolved) PlanID() string {
	return r.Plan.ID
}

// Limits returns the resolved plan's limits.
func (r *Resolved) Limits() plans.Limits {
	return r.Plan.Limits
}
