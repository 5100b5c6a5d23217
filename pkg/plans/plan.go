package plans

import (
	"fmt"
	"slices"
	"sort"
)

// Plan describes a subscription tier and its quota/feature constraints.
type Plan struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Tier        int       `yaml:"tier" json:"tier"` // rank in the plan hierarchy, higher is better
	Limits      Limits    `yaml:"limits" json:"limits"`
	Features    []Feature `yaml:"features" json:"features"`
}

// HasFeature reports whether the plan grants the feature,
// either explicitly or through FeatureAll.
func (p Plan) HasFeature(feature Feature) bool {
	return slices.Contains(p.Features, FeatureAll) || slices.Contains(p.Features, feature)
}

func (p Plan) clone() Plan {
	p.Features = slices.Clone(p.Features)
	return p
}

func (p Plan) validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan has empty id")
	}
	for name, v := range p.Limits.fields() {
		if v < Unlimited {
			return fmt.Errorf("plan %s has invalid %s limit: %d", p.ID, name, v)
		}
	}
	return nil
}

// Comparison contains the differences between two plans.
type Comparison struct {
	// Features gained in the target plan
	NewFeatures []Feature
	// Features lost from the current plan
	LostFeatures []Feature
	// Limits raised in the target plan (old limit -> new limit)
	IncreasedLimits map[string]LimitChange
	// Limits lowered in the target plan (old limit -> new limit)
	DecreasedLimits map[string]LimitChange
	// Whether the target plan ranks above the current one
	IsUpgrade bool
}

// LimitChange represents a change in a single limit.
type LimitChange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// HasDecreases returns true if any limit is lower in the target plan.
func (c *Comparison) HasDecreases() bool {
	return len(c.DecreasedLimits) > 0
}

// Compare returns the differences between current and target plans.
func Compare(current, target Plan) *Comparison {
	comparison := &Comparison{
		NewFeatures:     make([]Feature, 0),
		LostFeatures:    make([]Feature, 0),
		IncreasedLimits: make(map[string]LimitChange),
		DecreasedLimits: make(map[string]LimitChange),
		IsUpgrade:       target.Tier > current.Tier,
	}

	for _, feature := range target.Features {
		if !slices.Contains(current.Features, feature) {
			comparison.NewFeatures = append(comparison.NewFeatures, feature)
		}
	}
	for _, feature := range current.Features {
		if !slices.Contains(target.Features, feature) {
			comparison.LostFeatures = append(comparison.LostFeatures, feature)
		}
	}
	sort.Slice(comparison.NewFeatures, func(i, j int) bool { return comparison.NewFeatures[i] < comparison.NewFeatures[j] })
	sort.Slice(comparison.LostFeatures, func(i, j int) bool { return comparison.LostFeatures[i] < comparison.LostFeatures[j] })

	targetLimits := target.Limits.fields()
	for name, from := range current.Limits.fields() {
		to := targetLimits[name]
		if from == to {
			continue
		}
		change := LimitChange{From: from, To: to}
		switch {
		case from == Unlimited:
			// Going from unlimited to limited is a decrease
			comparison.DecreasedLimits[name] = change
		case to == Unlimited, to > from:
			comparison.IncreasedLimits[name] = change
		default:
			comparison.DecreasedLimits[name] = change
		}
	}

	return comparison
}
