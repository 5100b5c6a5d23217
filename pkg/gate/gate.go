package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/metrics"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/quota"
)

// Admission outcomes reported to metrics.
const (
	outcomePass   = "pass"
	outcomeReject = "reject"
	outcomeError  = "error"
)

// Gate builds admission chains over one resolver and plan catalog.
type Gate struct {
	resolver   Resolver
	catalog    *plans.Catalog
	log        *slog.Logger
	metrics    *metrics.Metrics
	upgradeURL string
	strict     bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger for rejections and guard failures.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithMetrics counts admissions per guard and outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithUpgradeURL sets the link offered in plan, feature and quota rejections.
// The suggested plan is appended as the "plan" query parameter.
func WithUpgradeURL(u string) Option {
	return func(g *Gate) {
		g.upgradeURL = u
	}
}

// WithStrict makes wiring errors, such as an unknown limit type, panic
// instead of producing a 500. Intended for development.
func WithStrict(strict bool) Option {
	return func(g *Gate) {
		g.strict = strict
	}
}

// New creates a Gate.
func New(resolver Resolver, catalog *plans.Catalog, opts ...Option) (*Gate, error) {
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}

	g := &Gate{
		resolver: resolver,
		catalog:  catalog,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logger.Component("gate"))
	return g, nil
}

// Compose returns middleware running guards strictly in order. The first
// rejection is rendered and ends the request; later guards never run.
// Chains nested on the same request share one State.
func (g *Gate) Compose(guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, ok := FromContext(r.Context())
			if !ok {
				state = newState(r, g.resolver, g.catalog)
				r = r.WithContext(withState(r.Context(), state))
			}
			state.Request = r
			ctx := r.Context()

			for _, guard := range guards {
				rej, err := guard.Check(ctx, state)
				if err != nil {
					g.metrics.Admission(guard.Name(), outcomeError)
					g.fail(w, r, guard, err)
					return
				}
				if rej != nil {
					g.metrics.Admission(guard.Name(), outcomeReject)
					g.reject(w, r, guard, state, rej)
					return
				}
				g.metrics.Admission(guard.Name(), outcomePass)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, guard Guard, state *State, rej *Rejection) {
	if rej.UpgradeURL == "" && upgradeable(rej.Code) {
		rej.UpgradeURL = g.upgradeLink(rej.Plan, rej.suggest)
	}

	attrs := []any{logger.Guard(guard.Name()), slog.String("code", rej.Code), slog.Int("status", rej.Status)}
	if state.Authenticated {
		attrs = append(attrs, logger.UserID(state.UserID))
	}
	if rej.Plan != "" {
		attrs = append(attrs, logger.PlanID(rej.Plan))
	}
	if rej.LimitType != "" {
		attrs = append(attrs, logger.LimitType(rej.LimitType))
	}
	g.log.InfoContext(r.Context(), "request rejected", attrs...)

	rej.Render(w)
}

func (g *Gate) fail(w http.ResponseWriter, r *http.Request, guard Guard, err error) {
	if g.strict && isWiringError(err) {
		panic(fmt.Sprintf("gate: guard %s misconfigured: %v", guard.Name(), err))
	}
	g.log.ErrorContext(r.Context(), "admission guard failed",
		logger.Guard(guard.Name()), logger.Error(err))
	internalError(w)
}

func (g *Gate) upgradeLink(current string, feature plans.Feature) string {
	if g.upgradeURL == "" {
		return ""
	}
	next, ok := g.catalog.NextTier(current, feature)
	if !ok {
		return g.upgradeURL
	}
	u, err := url.Parse(g.upgradeURL)
	if err != nil {
		return g.upgradeURL
	}
	q := u.Query()
	q.Set("plan", next.ID)
	u.RawQuery = q.Encode()
	return u.String()
}

func upgradeable(code string) bool {
	switch code {
	case CodeQuotaExceeded, CodeFileTooLarge, CodePlanRequired, CodeFeatureNotEntitled, CodeBatchTooLarge:
		return true
	}
	return false
}

func isWiringError(err error) bool {
	return errors.Is(err, quota.ErrInvalidLimitType) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, plans.ErrPlanNotFound)
}
