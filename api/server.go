/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     One slog line per request (logging.RequestLogger)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /healthz              Liveness and store reachability
  /api/walks/*          Booking and session lifecycle
  /api/walkers/*        Walker registry, availability, sessions
  /api/dogs/*           Dogs and their assessments
  /api/plans/*          Subscription plans
  /api/subscriptions/*  Purchase, cancel, credit history
  /api/assessments/*    Assessment workflow
  /api/scenarios/*      Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/walk-engine/logging"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = h.logger
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "NotFound", Message: "no route for " + r.URL.Path})
	})

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/walks", func(r chi.Router) {
			r.Get("/", h.ListWalks)
			r.Post("/", h.CreateWalk)
			r.Get("/{id}", h.GetWalk)
			r.Patch("/{id}/status", h.TransitionWalk)
			r.Patch("/{id}/dog-status", h.SetDogStatus)
			r.Put("/{id}/feedback", h.RecordFeedback)
		})

		r.Route("/walkers", func(r chi.Router) {
			r.Get("/", h.ListWalkers)
			r.Post("/", h.CreateWalker)
			r.Get("/{id}", h.GetWalker)
			r.Get("/{id}/availability", h.GetAvailability)
			r.Get("/{id}/sessions", h.GetSession)
		})

		r.Route("/dogs", func(r chi.Router) {
			r.Get("/", h.ListDogs)
			r.Post("/", h.CreateDog)
			r.Get("/{id}", h.GetDog)
			r.Get("/{id}/assessments", h.ListDogAssessments)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", h.ListSubscriptions)
			r.Post("/", h.PurchaseSubscription)
			r.Get("/{id}", h.GetSubscription)
			r.Get("/{id}/credits", h.GetCreditHistory)
			r.Post("/{id}/cancel", h.CancelSubscription)
		})

		r.Route("/assessments", func(r chi.Router) {
			r.Post("/", h.RequestAssessment)
			r.Get("/{id}", h.GetAssessment)
			r.Patch("/{id}", h.UpdateAssessment)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetStore)
		})
	})

	return r
}
