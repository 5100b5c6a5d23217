package gateway

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/history"
	"github.com/dmitrymomot/quotagate/pkg/quota"
)

const maxHistoryPage = history.DefaultListLimit

// document forwards an admitted upload to the processor. The multipart form
// was already parsed by the gate's guards.
func (h *handlers) document(op Operation, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files := uploaded(r, field)
		if len(files) == 0 {
			badRequest(w, "Upload at least one file in the \""+field+"\" field.")
			return
		}
		// merge needs something to merge
		if op == OpMerge && len(files) < 2 {
			badRequest(w, "Merging requires at least two files.")
			return
		}

		job := Job{Operation: op, Files: len(files)}
		for _, fh := range files {
			job.Bytes += fh.Size
		}
		if state, ok := gate.FromContext(r.Context()); ok {
			job.Plan = state.Entitlements(r.Context()).PlanID()
		}

		job, err := h.processor.Process(r.Context(), job, files)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func uploaded(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(gate.MaxMultipartMemory); err != nil {
			return nil
		}
	}
	return r.MultipartForm.File[field]
}

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	state, ok := gate.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, gate.ErrNoState)
		return
	}
	d, ok := state.Decision(quota.APICalls)
	if !ok {
		h.writeError(w, r, fmt.Errorf("no admitted decision for %s", quota.APICalls))
		return
	}
	remaining := d.Remaining
	if !d.Unlimited() {
		remaining = max(0, remaining-d.Requested)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pong":      true,
		"plan":      d.Plan,
		"remaining": remaining,
	})
}

func (h *handlers) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer.")
			return
		}
		limit = min(n, maxHistoryPage)
	}

	userID, err := gate.RequireUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.history.List(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
