// Package api provides the HTTP API handlers and routing for the jobs
// service.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"mljobs/internal/apperrors"
	"mljobs/internal/executor"
	"mljobs/internal/health"
	"mljobs/internal/job"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the jobs API
type Handler struct {
	svc        *job.Service
	reconciler *job.Reconciler
	health     *health.Checker
	signingKey string
}

// NewHandler creates a new API handler. The signing key authenticates
// inbound executor updates; empty disables verification.
func NewHandler(svc *job.Service, reconciler *job.Reconciler, healthChecker *health.Checker, signingKey string) *Handler {
	return &Handler{
		svc:        svc,
		reconciler: reconciler,
		health:     healthChecker,
		signingKey: signingKey,
	}
}

// SubmitJob handles POST /v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var spec job.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	receipt, err := h.svc.Submit(r.Context(), spec)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	// A delivery warning is still a successful submit: the record exists
	// and the client gets the job ID either way.
	h.writeJSON(w, http.StatusAccepted, receipt)
}

// ListJobs handles GET /v1/jobs?submitter=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.svc.List(r.Context(), r.URL.Query().Get("submitter"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, job.ListResponse{Jobs: snaps})
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	snap, err := h.svc.GetStatus(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// GetModel handles GET /v1/jobs/{jobId}/model
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	model, err := h.svc.GetModel(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, model)
}

// RedispatchJob handles POST /v1/jobs/{jobId}/dispatches
func (h *Handler) RedispatchJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	receipt, err := h.svc.Redispatch(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, receipt)
}

// JobUpdate handles POST /internal/jobs/{jobId}/updates - executor status
// reports. The body is verified against the X-Signature-256 header before
// parsing; signature checks need the raw bytes.
func (h *Handler) JobUpdate(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !executor.VerifySignature(body, h.signingKey, r.Header.Get(executor.SignatureHeader)) {
		slog.WarnContext(r.Context(), "Rejected update with bad signature", "job_id", jobID)
		h.writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var upd job.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid update body: "+err.Error())
		return
	}

	snap, err := h.reconciler.ApplyUpdate(r.Context(), jobID, upd)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic, 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps service layer errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
