/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters and latency, by route pattern
  5. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/routes/*       Routes and baseline comparison
  /api/compliance/*   CB computation
  /api/banking/*      Banking ledger
  /api/pools/*        Pooling
  /api/scenarios/*    Demo data (dev only)
  /metrics            Prometheus scrape endpoint
  /health             Liveness and database reachability

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/compliance-engine/metrics"
)

// NewRouter creates a new router with all routes configured. allowedOrigins
// feeds the CORS policy.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Method("GET", "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/routes", func(r chi.Router) {
			r.Get("/", h.ListRoutes)
			r.Get("/comparison", h.Comparison)
			r.Post("/{id}/baseline", h.SetBaseline)
		})

		r.Route("/compliance", func(r chi.Router) {
			r.Get("/cb", h.ComputeCB)
			r.Get("/adjusted-cb", h.AdjustedCB)
		})

		r.Route("/banking", func(r chi.Router) {
			r.Get("/records", h.BankingRecords)
			r.Post("/bank", h.BankSurplus)
			r.Post("/apply", h.ApplyBanked)
		})

		r.Route("/pools", func(r chi.Router) {
			r.Get("/", h.ListPools)
			r.Post("/", h.CreatePool)
			r.Get("/{id}", h.GetPool)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
