package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
)

// statusResponse is the JSON shape of /api/status.
type statusResponse struct {
	Report      *materials.Report `json:"report,omitempty"`
	LastRun     *runSummary       `json:"last_run,omitempty"`
	Error       string            `json:"error,omitempty"`
	RefreshedAt *time.Time        `json:"refreshed_at,omitempty"`
}

// runSummary is the JSON shape of the most recent publish run.
type runSummary struct {
	RunID        string `json:"run_id"`
	Collections  int    `json:"collections"`
	Publications int    `json:"publications"`
	Artifacts    int    `json:"artifacts"`
	Built        int    `json:"built"`
	Static       int    `json:"static"`
	Skipped      int    `json:"skipped"`
	Changed      int    `json:"changed"`
	Bytes        int64  `json:"bytes"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

// Health returns a simple liveness check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the latest pipeline snapshot. A failed rebuild keeps
// the last good report in place alongside its error.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.holder.Snapshot()

	resp := statusResponse{Report: snap.Report}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if !snap.RefreshedAt.IsZero() {
		at := snap.RefreshedAt
		resp.RefreshedAt = &at
	}
	if snap.Result != nil {
		resp.LastRun = summarize(snap.Result)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Runs returns recent publish runs, newest first. The limit query
// parameter bounds the page; zero applies the default.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.runs.Runs(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list runs")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "run history unavailable",
		})
		return
	}
	if runs == nil {
		runs = []ports.Run{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encode response")
	}
}

func summarize(res *app.PublishResult) *runSummary {
	return &runSummary{
		RunID:        res.RunID,
		Collections:  res.Collections,
		Publications: res.Publications,
		Artifacts:    res.Artifacts,
		Built:        res.Built,
		Static:       res.Static,
		Skipped:      res.Skipped,
		Changed:      res.Changed,
		Bytes:        res.Bytes,
		ElapsedMS:    res.Elapsed.Milliseconds(),
	}
}
