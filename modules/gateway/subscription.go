package gateway

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/quota"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

type subscriptionResponse struct {
	Subscription subscription.Subscription `json:"subscription"`
	Plan         plans.Plan                `json:"plan"`
	Usage        quota.Overview            `json:"usage"`
}

type cancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type changePlanRequest struct {
	Plan string `json:"plan"`
}

type planChange struct {
	From            string                       `json:"from"`
	To              string                       `json:"to"`
	IsUpgrade       bool                         `json:"isUpgrade"`
	NewFeatures     []plans.Feature              `json:"newFeatures"`
	LostFeatures    []plans.Feature              `json:"lostFeatures"`
	IncreasedLimits map[string]plans.LimitChange `json:"increasedLimits"`
	DecreasedLimits map[string]plans.LimitChange `json:"decreasedLimits"`
}

type changePlanResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Change       planChange                 `json:"change"`
}

// resolved loads the caller's entitlements through the request State, which
// also provisions first-time users so lifecycle calls find a record.
func resolved(r *http.Request) *entitlement.Resolved {
	state, _ := gate.FromContext(r.Context())
	return state.Entitlements(r.Context())
}

func (h *handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	res := resolved(r)
	overview, err := quota.Summarize(res)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{
		Subscription: res.Subscription,
		Plan:         res.Plan,
		Usage:        overview,
	})
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "Request body must be {\"at_period_end\": bool}.")
		return
	}

	res := resolved(r)
	userID := res.Subscription.UserID

	var (
		sub *subscription.Subscription
		err error
	)
	if req.AtPeriodEnd {
		sub, err = h.lifecycle.ScheduleCancel(r.Context(), userID)
	} else {
		sub, err = h.lifecycle.Cancel(r.Context(), userID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.InfoContext(r.Context(), "subscription cancelled",
		logger.PlanID(sub.PlanID), logger.Status(string(sub.Status)), logger.Event("cancel"))
	writeJSON(w, http.StatusOK, sub)
}

func (h *handlers) reactivate(w http.ResponseWriter, r *http.Request) {
	res := resolved(r)
	sub, err := h.lifecycle.Reactivate(r.Context(), res.Subscription.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.InfoContext(r.Context(), "subscription reactivated",
		logger.PlanID(sub.PlanID), logger.Event("reactivate"))
	writeJSON(w, http.StatusOK, sub)
}

func (h *handlers) changePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Plan) == "" {
		badRequest(w, "Request body must be {\"plan\": \"<plan id>\"}.")
		return
	}

	target, err := h.catalog.Get(req.Plan)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := resolved(r)
	current := res.Plan
	sub, err := h.lifecycle.ChangePlan(r.Context(), res.Subscription.UserID, target.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cmp := plans.Compare(current, target)
	h.log.InfoContext(r.Context(), "subscription plan changed",
		logger.PlanID(target.ID), logger.Event("change_plan"))
	writeJSON(w, http.StatusOK, changePlanResponse{
		Subscription: sub,
		Change: planChange{
			From:            current.ID,
			To:              target.ID,
			IsUpgrade:       cmp.IsUpgrade,
			NewFeatures:     cmp.NewFeatures,
			LostFeatures:    cmp.LostFeatures,
			IncreasedLimits: cmp.IncreasedLimits,
			DecreasedLimits: cmp.DecreasedLimits,
		},
	})
}
