package gate

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/quota"
)

// Resolver resolves a user's entitlements; *entitlement.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) *entitlement.Resolved
}

// State is the request-scoped admission state shared by the guards of one
// chain and the handler behind it. It is never shared across requests.
type State struct {
	UserID        uuid.UUID
	Authenticated bool
	Request       *http.Request

	resolver  Resolver
	catalog   *plans.Catalog
	resolved  *entitlement.Resolved
	decisions map[quota.LimitType]quota.Decision
}

func newState(r *http.Request, resolver Resolver, catalog *plans.Catalog) *State {
	s := &State{
		Request:   r,
		resolver:  resolver,
		catalog:   catalog,
		decisions: make(map[quota.LimitType]quota.Decision),
	}
	s.UserID, s.Authenticated = UserIDFromContext(r.Context())
	return s
}

// Entitlements resolves the user's entitlements once per request.
// It returns nil for unauthenticated requests.
func (s *State) Entitlements(ctx context.Context) *entitlement.Resolved {
	if s.resolved == nil && s.Authenticated && s.resolver != nil {
		s.resolved = s.resolver.Resolve(ctx, s.UserID)
	}
	return s.resolved
}

// Resolved returns the entitlements attached by an earlier guard, or nil.
func (s *State) Resolved() *entitlement.Resolved {
	return s.resolved
}

// Decision returns the quota decision admitted for lt, if a guard made one.
func (s *State) Decision(lt quota.LimitType) (quota.Decision, bool) {
	d, ok := s.decisions[lt]
	return d, ok
}

// Decisions returns a copy of all admitted quota decisions.
func (s *State) Decisions() map[quota.LimitType]quota.Decision {
	out := make(map[quota.LimitType]quota.Decision, len(s.decisions))
	for k, v := range s.decisions {
		out[k] = v
	}
	return out
}

func (s *State) attach(d quota.Decision) {
	s.decisions[d.LimitType] = d
}

type stateKey struct{}

func withState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// FromContext returns the admission state of the current request.
func FromContext(ctx context.Context) (*State, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(stateKey{}).(*State)
	return s, ok && s != nil
}
