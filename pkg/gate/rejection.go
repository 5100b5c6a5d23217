package gate

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrymomot/quotagate/pkg/plans"
)

// Rejection is a business refusal produced by a guard. It is a value, not an
// error: infrastructure failures are reported through the guard's error result.
type Rejection struct {
	Status     int             `json:"-"`
	Code       string          `json:"error"`
	Message    string          `json:"message"`
	Limit      *int64          `json:"limit,omitempty"`
	Current    *int64          `json:"current,omitempty"`
	Remaining  *int64          `json:"remaining,omitempty"`
	Plan       string          `json:"plan,omitempty"`
	LimitType  string          `json:"limitType,omitempty"`
	UpgradeURL string          `json:"upgradeUrl,omitempty"`
	Files      []OversizedFile `json:"files,omitempty"`

	// suggest selects the upgrade target; empty means the next tier up.
	suggest plans.Feature
}

// OversizedFile names an upload exceeding the plan's per-file limit.
type OversizedFile struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Limit int64  `json:"limit"`
}

// Render writes the rejection as a JSON body with its status code.
func (r *Rejection) Render(w http.ResponseWriter) {
	status := r.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	writeJSON(w, status, r)
}

func ptr(v int64) *int64 { return &v }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, &Rejection{
		Code:    CodeInternal,
		Message: "The request could not be evaluated. Please try again later.",
	})
}
