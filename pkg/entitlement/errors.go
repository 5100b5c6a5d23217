package entitlement

import "errors"

var (
	ErrStoreRequired   = errors.New("entitlement: subscription store is required")
	ErrCatalogRequired = errors.New("entitlement: plan catalog is required")
)
