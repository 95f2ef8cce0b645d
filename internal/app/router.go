package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/observability"
	"github.com/odyssey-erp/odyssey-textile/internal/workflow"
	"github.com/odyssey-erp/odyssey-textile/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Authn           authz.Middleware
	WorkflowHandler *workflow.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.WorkflowHandler != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(params.Authn.RequireActor)
			params.WorkflowHandler.MountRoutes(r)
		})
		// Gateway callbacks authenticate by signature, not by actor headers.
		params.WorkflowHandler.MountWebhooks(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
