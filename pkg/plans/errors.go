package plans

import "errors"

// Domain errors for plan catalog operations
var (
	ErrPlanNotFound             = errors.New("plans.errors.plan_not_found")
	ErrInvalidPlanConfiguration = errors.New("plans.errors.invalid_plan_configuration")
	ErrDefaultPlanMissing       = errors.New("plans.errors.default_plan_missing")
	ErrFailedToLoadPlans        = errors.New("plans.errors.failed_to_load_plans")
)
