// Package plans provides the plan catalog: a static mapping of plan identifiers
// to monthly quota limits and feature flags.
//
// Key concepts:
//
//   - Plan: a named tier (free, basic, pro, premium) with a rank, limits and features
//   - Limits: per-dimension caps where Unlimited (-1) means no cap
//   - Feature: plan-specific capability; FeatureAll grants every flag
//   - Source: where plans come from (compiled-in defaults or a YAML file)
//
// Basic usage:
//
//	catalog, err := plans.NewCatalog(ctx, plans.NewInMemSource(plans.DefaultPlans()...))
//	if err != nil {
//	    return err
//	}
//
//	basic, err := catalog.Get("basic")
//	if errors.Is(err, plans.ErrPlanNotFound) {
//	    // unknown plan
//	}
//
//	if catalog.HasFeature("pro", plans.FeatureAISummary) {
//	    // allowed
//	}
//
// Loading an operator-supplied catalog:
//
//	catalog, err := plans.NewCatalog(ctx, plans.NewYAMLSource("/etc/quotagate/plans.yaml"))
//
// The catalog must always contain the default plan (free unless overridden with
// WithDefaultPlan), because users without a subscription record resolve to it.
package plans
