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
  /api/reservations/*   Reservation lifecycle
  /api/items/*          Schedulable items and their calendars
  /api/outages/*        Scheduled downtime
  /api/tools/*          Usage control (interlocks)
  /api/users/*          Directory snapshots

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
		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/move", h.MoveReservation)
			r.Post("/{id}/resize", h.ResizeReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/shorten", h.ShortenReservation)
		})

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Get("/{id}/reservations", h.ListItemReservations)
			r.Get("/{id}/estimate", h.EstimateCost)
			r.Post("/{id}/missed", h.SweepMissed)
		})

		// Outage routes
		r.Route("/outages", func(r chi.Router) {
			r.Post("/", h.CreateOutage)
			r.Post("/recurring", h.CreateRecurringOutage)
			r.Delete("/{id}", h.DeleteOutage)
		})

		// Tool usage routes
		r.Route("/tools", func(r chi.Router) {
			r.Post("/{id}/enable", h.EnableTool)
			r.Post("/{id}/disable", h.DisableTool)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
		})

		// Health check
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
