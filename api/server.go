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
  /api/orders/*     Point awards
  /api/users/*      Balances, ledger history, redemption
  /api/rules/*      Earning rule management
  /api/products/*   Product catalog (category mapping)
  /api/scenarios/*  Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
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
		// Award routes
		r.Route("/orders", func(r chi.Router) {
			r.Post("/{id}/award", h.AwardOrder)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/points", h.GetPoints)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Post("/{id}/redeem", h.RedeemPoints)
		})

		// Rule routes
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListMasterRules)
			r.Post("/", h.SaveMasterRule)
			r.Post("/upload", h.UploadRuleSet)
			r.Post("/{id}/activate", h.SetRuleActive(true))
			r.Post("/{id}/deactivate", h.SetRuleActive(false))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.ListProductRules)
				r.Post("/", h.SaveProductRule)
				r.Delete("/{id}", h.DeleteProductRule)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrderAmountRules)
				r.Post("/", h.SaveOrderAmountRule)
				r.Delete("/{id}", h.DeleteOrderAmountRule)
			})
		})

		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.SaveProduct)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
