// Package quota evaluates usage counters against plan limits.
//
// Check is a pure function over an entitlement.Resolved view: it never touches
// storage, so admission is a point-in-time decision and concurrent requests
// may overshoot a limit by a bounded amount. A limit of plans.Unlimited
// always admits and reports Remaining as -1.
//
//	d, err := quota.Check(view, quota.Files, 3)
//	if err != nil {
//		return err // unknown limit type
//	}
//	if !d.Allowed {
//		// respond 403 with d.Limit, d.Current and d.Remaining
//	}
package quota
