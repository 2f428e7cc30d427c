/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for the back-office frontend
  5. Authenticator: Actor extraction (JWT, or headers in dev mode)

ROUTE GROUPS:
  /api/drivers/*    Driver registry and per-driver trip listings
  /api/trips/*      Trip recording and edits
  /api/rates/*      Rate table history and resolution
  /api/payrolls/*   Generation, review workflow, adjustments

AUTHORIZATION:
  Back-office mutations (rate uploads, generation, adjustments, delete)
  are gated on admin/accountant via RequireRoles. Workflow transitions
  carry their own per-action role guards in the payroll package, so the
  routes only require SOME authenticated actor.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authenticator and RequireRoles
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/haulmark/payroll-engine/payroll"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Role"},
		AllowCredentials: true,
	}))
	r.Use(auth.Middleware)

	backOffice := RequireRoles(payroll.RoleAdmin, payroll.RoleAccountant)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Driver routes
		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.With(backOffice).Post("/", h.CreateDriver)
			r.Get("/{id}/trips", h.ListDriverTrips)
		})

		// Trip routes
		r.Route("/trips", func(r chi.Router) {
			r.With(backOffice).Post("/", h.CreateTrip)
			r.Get("/{id}", h.GetTrip)
			r.With(backOffice).Patch("/{id}", h.UpdateTrip)
		})

		// Rate table routes
		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRateTables)
			r.With(backOffice).Post("/", h.CreateRateTable)
			r.Get("/resolve", h.ResolveRateTable)
		})

		// Payroll routes
		r.Route("/payrolls", func(r chi.Router) {
			r.With(backOffice).Post("/generate", h.GeneratePayroll)
			r.With(backOffice).Post("/generate-all", h.GenerateAllPayrolls)
			r.Get("/", h.ListPayrolls)
			r.Get("/{id}", h.GetPayroll)
			r.With(backOffice).Post("/{id}/adjustments", h.AddAdjustment)
			r.With(backOffice).Delete("/{id}", h.DeletePayroll)

			// Workflow transitions carry fine-grained role guards in the
			// engine itself; the routes only need an authenticated actor.
			r.Post("/{id}/submit", h.SubmitPayroll)
			r.Post("/{id}/confirm", h.ConfirmPayroll)
			r.Post("/{id}/dispute", h.DisputePayroll)
			r.Post("/{id}/pay", h.PayPayroll)
		})
	})

	return r
}
