package api

import (
	"fmt"
	"net/http"

	"github.com/dennisdiepolder/breakroster/internal/auth"
	"github.com/dennisdiepolder/breakroster/internal/distribution"
	"github.com/dennisdiepolder/breakroster/internal/metrics"
	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/warnings"
	"github.com/dennisdiepolder/breakroster/internal/workflow"
	"github.com/dennisdiepolder/breakroster/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps bundles everything the router mounts
type Deps struct {
	Distribution *distribution.Service
	Workflow     *workflow.Service
	Tracker      *warnings.Tracker
	Rules        RuleSource
	Store        storage.Store

	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	Logger         zerolog.Logger
}

// NewRouter assembles the HTTP surface. Health and metrics are public,
// /internal serves the upstream planner without auth, everything under
// /api requires a token. Submitting is open to any roster role, executing
// swaps to wfm and admin; per-edge transition checks live in the handler.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	roster := NewRosterHandler(d.Store, d.Tracker, d.Logger)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/roster", roster.HandleRoster)
	})

	dist := NewDistributionHandler(d.Distribution, d.Logger)
	reqs := NewRequestsHandler(d.Workflow, d.Logger)
	warn := NewWarningsHandler(d.Tracker, d.Logger)
	ruleset := NewRulesHandler(d.Rules, d.Logger)

	// One shared limiter across all mutation routes; reads stay unmetered
	limit := func(next http.Handler) http.Handler { return next }
	if d.RateLimit > 0 {
		limit = middleware.RateLimit(d.RateLimit, d.RateBurst)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/api/distribution", func(r chi.Router) {
			r.Get("/settings", dist.Settings)
			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Use(auth.RequireRole(auth.RoleTeamLead, auth.RoleWFM, auth.RoleManager, auth.RoleAdmin))
				r.Post("/propose", dist.Propose)
				r.Post("/commit", dist.Commit)
				r.Post("/validate", dist.Validate)
			})
		})

		r.Route("/api/requests", func(r chi.Router) {
			r.Get("/", reqs.List)
			r.Get("/{id}", reqs.Get)
			r.With(limit, auth.RequireRole(auth.RoleAgent, auth.RoleTeamLead, auth.RoleWFM, auth.RoleManager, auth.RoleAdmin)).
				Post("/", reqs.Submit)
			r.With(limit).Post("/{id}/transition", reqs.Transition)
			r.With(limit, auth.RequireRole(auth.RoleWFM, auth.RoleAdmin)).
				Post("/{id}/execute", reqs.Execute)
		})

		r.Route("/api/warnings", func(r chi.Router) {
			r.Get("/", warn.List)
			r.With(limit).Post("/check", warn.Check)
			r.With(limit).Post("/{id}/dismiss", warn.Dismiss)
		})

		r.Get("/api/rules", ruleset.List)
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"breakroster"}`)
}
