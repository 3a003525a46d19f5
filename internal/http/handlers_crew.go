// Package httpx provides the HTTP handlers, middleware and routing for the crew job API.
package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/crew-api/internal/domain/model"
	"github.com/target/crew-api/internal/service"
)

// IdempotencyKeyHeader lets clients retry a submission without creating a second job.
const IdempotencyKeyHeader = "Idempotency-Key"

// CrewHandlers provides HTTP handlers for crew job submission and polling.
type CrewHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// Submit handles POST /api/crew. It answers 202 with the new job id; the work runs in the background.
func (h *CrewHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.CrewRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Svc.Submit(r.Context(), &req, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		h.logError(r, "submit crew job", err)
		writeAppError(w, err)
		return
	}

	w.Header().Set("Location", "/api/crew/"+res.JobID)
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	WriteJSON(w, http.StatusAccepted, model.SubmitResponse{JobID: res.JobID})
}

// Get handles GET /api/crew/{job_id} and returns the current job snapshot.
func (h *CrewHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), r.PathValue("job_id"))
	if err != nil {
		h.logError(r, "get crew job", err)
		writeAppError(w, err)
		return
	}
	if !job.Status.IsTerminal() {
		w.Header().Set("Cache-Control", "no-store")
	}
	WriteJSON(w, http.StatusOK, job)
}

// Stats handles GET /api/crew/stats.
func (h *CrewHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.Svc.Stats(r.Context())
	WriteJSON(w, http.StatusOK, struct {
		model.JobStats
		Total int `json:"total"`
	}{JobStats: stats, Total: stats.Total()})
}

func (h *CrewHandlers) logError(r *http.Request, msg string, err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.DebugContext(r.Context(), msg,
		"path", strings.TrimSpace(r.URL.Path),
		"error", err,
	)
}

func registerCrewRoutes(mux *http.ServeMux, h *CrewHandlers, stream *StreamHandler) {
	mux.HandleFunc("POST /api/crew", h.Submit)
	mux.HandleFunc("GET /api/crew/stats", h.Stats)
	mux.HandleFunc("GET /api/crew/{job_id}", h.Get)
	if stream != nil {
		mux.Handle("GET /api/crew/{job_id}/stream", stream)
	}
}
