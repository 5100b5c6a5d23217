package plans

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Catalog is an immutable registry of plans keyed by ID.
// Safe for concurrent use once constructed.
type Catalog struct {
	plans       map[string]Plan
	defaultPlan string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithDefaultPlan overrides the plan assigned to users without a subscription.
func WithDefaultPlan(id string) CatalogOption {
	return func(c *Catalog) {
		c.defaultPlan = id
	}
}

// NewCatalog loads plans from src and validates them.
// The default plan must be present.
func NewCatalog(ctx context.Context, src Source, opts ...CatalogOption) (*Catalog, error) {
	list, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	c := &Catalog{
		plans:       make(map[string]Plan, len(list)),
		defaultPlan: DefaultPlanID,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, p := range list {
		if err := p.validate(); err != nil {
			return nil, errors.Join(ErrInvalidPlanConfiguration, err)
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %s", p.ID))
		}
		c.plans[p.ID] = p.clone()
	}

	if _, ok := c.plans[c.defaultPlan]; !ok {
		return nil, errors.Join(ErrDefaultPlanMissing, fmt.Errorf("plan %q", c.defaultPlan))
	}

	return c, nil
}

// MustCatalog is NewCatalog over the compiled-in default plans. Panics on error.
func MustCatalog() *Catalog {
	c, err := NewCatalog(context.Background(), NewInMemSource(DefaultPlans()...))
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p.clone(), nil
}

// Verify returns ErrPlanNotFound for unknown plan IDs.
func (c *Catalog) Verify(id string) error {
	if _, ok := c.plans[id]; !ok {
		return ErrPlanNotFound
	}
	return nil
}

// HasFeature reports whether the plan grants the feature.
// Unknown plans grant nothing.
func (c *Catalog) HasFeature(id string, feature Feature) bool {
	p, ok := c.plans[id]
	if !ok {
		return false
	}
	return p.HasFeature(feature)
}

// Default returns the plan assigned to users without a subscription.
func (c *Catalog) Default() Plan {
	return c.plans[c.defaultPlan].clone()
}

// DefaultID returns the ID of the default plan.
func (c *Catalog) DefaultID() string {
	return c.defaultPlan
}

// Rank returns the plan's position in the tier hierarchy.
func (c *Catalog) Rank(id string) (int, error) {
	p, ok := c.plans[id]
	if !ok {
		return 0, ErrPlanNotFound
	}
	return p.Tier, nil
}

// List returns all plans ordered by tier.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier == out[j].Tier {
			return out[i].ID < out[j].ID
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}

// NextTier returns the cheapest plan ranked above id granting the feature,
// used for upgrade hints. ok is false when no such plan exists.
func (c *Catalog) NextTier(id string, feature Feature) (Plan, bool) {
	rank, err := c.Rank(id)
	if err != nil {
		rank = -1
	}
	for _, p := range c.List() {
		if p.Tier > rank && (feature == "" || p.HasFeature(feature)) {
			return p, true
		}
	}
	return Plan{}, false
}
