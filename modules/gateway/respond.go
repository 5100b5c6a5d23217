package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/logger"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
)

// Error codes of the subscription endpoints, next to the gate's codes.
const (
	CodeSubscriptionNotFound = "subscription_not_found"
	CodeInvalidTransition    = "invalid_transition"
	CodeUnknownPlan          = "unknown_plan"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	(&gate.Rejection{Status: http.StatusBadRequest, Code: gate.CodeInvalidRequest, Message: msg}).Render(w)
}

// writeError maps lifecycle and catalog errors onto the rejection body.
// Anything unrecognized is logged and answered with 500.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rej := &gate.Rejection{}
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		rej.Status, rej.Code, rej.Message = http.StatusNotFound, CodeSubscriptionNotFound, "No subscription exists for this account."
	case errors.Is(err, subscription.ErrInvalidTransition):
		rej.Status, rej.Code, rej.Message = http.StatusConflict, CodeInvalidTransition, err.Error()
	case errors.Is(err, plans.ErrPlanNotFound), errors.Is(err, subscription.ErrPlanNotAllowed):
		rej.Status, rej.Code, rej.Message = http.StatusBadRequest, CodeUnknownPlan, "The requested plan does not exist."
	default:
		h.log.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), logger.Error(err))
		rej.Status, rej.Code, rej.Message = http.StatusInternalServerError, gate.CodeInternal, "Internal server error."
	}
	rej.Render(w)
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
