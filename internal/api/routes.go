package api

import (
	"net/http"

	"mljobs/internal/health"
	"mljobs/internal/job"
	"mljobs/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Reconciler    *job.Reconciler
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	SigningKey    string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Reconciler, cfg.HealthChecker, cfg.SigningKey)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Executor callback - authenticated by HMAC signature, not bearer token
	mux.HandleFunc("POST /internal/jobs/{jobId}/updates", handler.JobUpdate)

	// Job endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/jobs", authMiddleware(http.HandlerFunc(handler.SubmitJob)))
	mux.Handle("GET /v1/jobs", authMiddleware(http.HandlerFunc(handler.ListJobs)))
	mux.Handle("GET /v1/jobs/{jobId}", authMiddleware(http.HandlerFunc(handler.GetJob)))
	mux.Handle("GET /v1/jobs/{jobId}/model", authMiddleware(http.HandlerFunc(handler.GetModel)))
	mux.Handle("POST /v1/jobs/{jobId}/dispatches", authMiddleware(http.HandlerFunc(handler.RedispatchJob)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
