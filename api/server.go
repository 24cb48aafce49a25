/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logging:    zap request logger carrying the request id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    http_requests_total by route pattern
  5. CORS:       Cross-origin requests, origins from config

ROUTE GROUPS:
  /healthz, /metrics    Unauthenticated probes
  /api/*                Requires X-User-ID (Identity middleware)
  /api/scenarios/*      Demo data (admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/timekeeper/logging"
)

// RouterOptions configures NewRouter. Zero values are usable.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if h.Metrics == nil {
		h.Metrics = NewMetrics()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", UserHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Identity(h.Users))

		r.Get("/me", h.Me)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetUser)
				r.Get("/balances", h.GetBalances)
				r.Put("/balances/{year}", h.SetAllotment)
				r.Get("/work-schedules", h.ListAssignments)
				r.Post("/work-schedules", h.AssignWorkSchedule)
				r.Get("/work-schedules/current", h.CurrentWorkSchedule)
			})
		})

		// Leave request routes
		r.Route("/leave-requests", func(r chi.Router) {
			r.Get("/", h.ListLeaveRequests)
			r.Post("/", h.SubmitLeaveRequest)
			r.Get("/{id}", h.GetLeaveRequest)
			r.Put("/{id}", h.EditLeaveRequest)
			r.Delete("/{id}", h.DeleteLeaveRequest)
			r.Post("/{id}/approve", h.ApproveLeaveRequest)
			r.Post("/{id}/reject", h.RejectLeaveRequest)
			r.Get("/{id}/history", h.LeaveRequestHistory)
		})

		// Work schedule template routes
		r.Route("/work-schedules", func(r chi.Router) {
			r.Get("/", h.ListWorkSchedules)
			r.Post("/", h.CreateWorkSchedule)
			r.Get("/{id}", h.GetWorkSchedule)
			r.Put("/{id}", h.UpdateWorkSchedule)
			r.Post("/{id}/default", h.SetDefaultWorkSchedule)
		})

		// Assignment routes
		r.Route("/user-work-schedules", func(r chi.Router) {
			r.Put("/{id}", h.UpdateAssignment)
			r.Delete("/{id}", h.RemoveAssignment)
		})

		r.Get("/reports/leave", h.LeaveReport)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
