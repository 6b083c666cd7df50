package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/errdeck/errdeck/internal/api/middleware"
	"github.com/errdeck/errdeck/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AdminAuth *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	IngestHandler    http.HandlerFunc
	MergeHandler     http.HandlerFunc
	ResolveHandler   http.HandlerFunc
	UnresolveHandler http.HandlerFunc
	DestroyHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)

	// Public health check and metrics
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Ingestion, authenticated by the reported API key inside the pipeline
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/notices", orNotImplemented(deps.IngestHandler))
	})

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(deps.AdminAuth.Authenticate)

		r.Post("/api/v1/problems/merge", orNotImplemented(deps.MergeHandler))
		r.Post("/api/v1/problems/{problemID}/resolve", orNotImplemented(deps.ResolveHandler))
		r.Post("/api/v1/problems/{problemID}/unresolve", orNotImplemented(deps.UnresolveHandler))
		r.Delete("/api/v1/problems/{problemID}", orNotImplemented(deps.DestroyHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
