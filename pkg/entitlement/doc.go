// Package entitlement resolves what a user may do right now.
//
// A Resolver reads the user's subscription together with the current period's
// usage counters and the limits of the subscribed plan. Resolution never
// fails: first-time users are provisioned on the default plan, subscriptions
// whose billing period ended are reported as expired (or cancelled when the
// cancellation was deferred), and store outages yield a degraded view on the
// default plan with zeroed usage.
//
// Usage:
//
//	resolver, err := entitlement.NewResolver(store, catalog,
//		entitlement.WithLogger(log),
//		entitlement.WithMetrics(m),
//	)
//	if err != nil {
//		return err
//	}
//	view := resolver.Resolve(ctx, userID)
//	if !view.IsValid() {
//		// reject
//	}
package entitlement
