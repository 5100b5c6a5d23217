package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/history"
	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/quota"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
	"github.com/dmitrymomot/quotagate/pkg/usage"
)

// Upload field names.
const (
	FieldFiles = "files" // merge accepts several documents
	FieldFile  = "file"  // every other operation takes one
)

var (
	ErrGateRequired      = errors.New("gateway: admission gate is required")
	ErrTrackerRequired   = errors.New("gateway: usage tracker is required")
	ErrLifecycleRequired = errors.New("gateway: subscription lifecycle is required")
	ErrCatalogRequired   = errors.New("gateway: plan catalog is required")
)

// HistoryLister reads a user's file history, newest first.
type HistoryLister interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]history.Entry, error)
}

// RouterOptions wires the gateway's collaborators. History and Processor are
// optional: without History the history route is not mounted, without
// Processor operations are accepted by AcceptingProcessor. APIMinPlan, when
// set, is the lowest plan tier admitted to the API routes.
type RouterOptions struct {
	Gate      *gate.Gate
	Tracker   *usage.Tracker
	Lifecycle *subscription.Lifecycle
	Catalog   *plans.Catalog
	History   HistoryLister
	Processor  Processor
	APIMinPlan string
	Logger     *slog.Logger
}

type handlers struct {
	lifecycle *subscription.Lifecycle
	catalog   *plans.Catalog
	history   HistoryLister
	processor Processor
	log       *slog.Logger
}

// Router mounts the /v1 API. Every route is admitted by the gate; metered
// routes record usage only when they answer with 2xx.
func Router(opts RouterOptions) (chi.Router, error) {
	switch {
	case opts.Gate == nil:
		return nil, ErrGateRequired
	case opts.Tracker == nil:
		return nil, ErrTrackerRequired
	case opts.Lifecycle == nil:
		return nil, ErrLifecycleRequired
	case opts.Catalog == nil:
		return nil, ErrCatalogRequired
	}
	if opts.APIMinPlan != "" {
		if _, err := opts.Catalog.Rank(opts.APIMinPlan); err != nil {
			return nil, fmt.Errorf("api minimum plan %q: %w", opts.APIMinPlan, err)
		}
	}

	h := &handlers{
		lifecycle: opts.Lifecycle,
		catalog:   opts.Catalog,
		history:   opts.History,
		processor: opts.Processor,
		log:       opts.Logger,
	}
	if h.processor == nil {
		h.processor = AcceptingProcessor{}
	}
	if h.log == nil {
		h.log = logger.Discard()
	}
	h.log = h.log.With(logger.Component("gateway"))

	g, t := opts.Gate, opts.Tracker
	authenticated := g.Compose(gate.AuthPresence())

	r := chi.NewRouter()

	r.Route("/v1/subscription", func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/", h.getSubscription)
		r.Post("/cancel", h.cancel)
		r.Post("/reactivate", h.reactivate)
		r.Post("/plan", h.changePlan)
	})

	r.Route("/v1/documents", func(r chi.Router) {
		r.With(
			g.Compose(documentGuards(plans.FeatureMerge, FieldFiles, true)...),
			t.Wrap(usage.FileProcessed, usage.FromDecision(quota.Files), usage.Action(string(OpMerge))),
			t.Wrap(usage.StorageUsed, usage.FromDecision(quota.Storage), nil),
		).Post("/merge", h.document(OpMerge, FieldFiles))

		for _, op := range []Operation{OpSplit, OpCompress, OpConvert} {
			r.With(
				g.Compose(documentGuards(op.Feature(), FieldFile, false)...),
				t.Wrap(usage.FileProcessed, usage.FromDecision(quota.Files), usage.Action(string(op))),
				t.Wrap(usage.StorageUsed, usage.FromDecision(quota.Storage), nil),
			).Post("/"+string(op), h.document(op, FieldFile))
		}
	})

	r.With(
		g.Compose(
			gate.SubscriptionValidity(),
			gate.FeatureGate(plans.FeatureAISummary),
			gate.FileSizeLimit(gate.MultipartFiles(FieldFile)),
			gate.ResourceQuota(quota.AIOperations, gate.Constant(1)),
		),
		t.Wrap(usage.AIOperation, usage.FromDecision(quota.AIOperations), nil),
	).Post("/v1/ai/summarize", h.document(OpSummarize, FieldFile))

	apiGuards := []gate.Guard{gate.SubscriptionValidity()}
	if opts.APIMinPlan != "" {
		apiGuards = append(apiGuards, gate.PlanTier(opts.APIMinPlan))
	}
	apiGuards = append(apiGuards,
		gate.FeatureGate(plans.FeatureAPIAccess),
		gate.ResourceQuota(quota.APICalls, gate.Constant(1)),
	)
	r.With(
		g.Compose(apiGuards...),
		t.Wrap(usage.APICall, usage.FromDecision(quota.APICalls), nil),
	).Get("/v1/api/ping", h.ping)

	if h.history != nil {
		r.With(g.Compose(
			gate.SubscriptionValidity(),
			gate.FeatureGate(plans.FeatureFileHistory),
		)).Get("/v1/history", h.listHistory)
	}

	return r, nil
}

// documentGuards admits a document upload: valid subscription, the
// operation's feature, per-file size, batch size for multi-file uploads,
// then the monthly file and storage quotas.
func documentGuards(feature plans.Feature, field string, batch bool) []gate.Guard {
	guards := []gate.Guard{
		gate.SubscriptionValidity(),
		gate.FeatureGate(feature),
		gate.FileSizeLimit(gate.MultipartFiles(field)),
	}
	if batch {
		guards = append(guards, gate.BatchSizeLimit(gate.FileCount(field)))
	}
	return append(guards,
		gate.ResourceQuota(quota.Files, gate.FileCount(field)),
		gate.ResourceQuota(quota.Storage, gate.TotalFileBytes(field)),
	)
}

// RouteName labels metrics with the matched chi pattern instead of the raw path.
func RouteName(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
