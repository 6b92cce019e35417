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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/orgs/*         Organizations and their items
  /api/items/*        Items, metrics, ledger history, stock and loan writes
  /api/loans/*        Loan approval and returns
  /api/users/*        Per-user loan views
  /api/audit          Reconciliation sweep
  /api/scenarios/*    Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Organization routes
		r.Route("/orgs", func(r chi.Router) {
			r.Get("/", h.ListOrganizations)
			r.Post("/", h.CreateOrganization)
			r.Get("/{id}/items", h.ListOrgItems)
		})

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Get("/{id}/metrics", h.GetItemMetrics)
			r.Get("/{id}/transactions", h.GetItemTransactions)
			r.Post("/{id}/stock/add", h.AddStock)
			r.Post("/{id}/stock/lose", h.LoseStock)
			r.Post("/{id}/loans", h.CreateLoan)
		})

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApproveLoan)
			r.Post("/{id}/returns", h.RecordReturn)
		})

		// Per-user views
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/loans", h.ListUserLoans)
		})

		// Reconciliation
		r.Get("/audit", h.RunAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Inventory Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Inventory Engine API</h1>
<p>The ledger API is mounted under <code>/api</code>. Start with
<code>GET /api/orgs</code> or load a demo scenario with
<code>POST /api/scenarios/load</code>.</p>
</body>
</html>`))
	})

	return r
}
