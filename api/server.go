/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     One zerolog line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web app
  5. Caller:     X-Workspace-ID / X-Member-ID resolution (inside /api,
                 except registration)

AUTHENTICATION:
  The engine sits behind a gateway that authenticates users and forwards
  their workspace and member ids as headers. It only authorizes.

SEE ALSO:
  - handlers.go:   Handler implementations
  - middleware.go: Logger, Recoverer, CallerMiddleware
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/absentify/allowance-engine/logger"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, log *logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log.WithComponent("http")))
	r.Use(Recoverer(log.WithComponent("http")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderWorkspaceID, HeaderMemberID},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/workspaces", h.RegisterWorkspace)

		r.Group(func(r chi.Router) {
			r.Use(h.CallerMiddleware)

			r.Route("/workspace/schedule", func(r chi.Router) {
				r.Get("/", h.GetWorkspaceSchedule)
				r.Put("/", h.UpdateWorkspaceSchedule)
			})

			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.ListMembers)
				r.Post("/", h.CreateMember)
				r.Get("/{id}/schedules", h.ListMemberSchedules)
				r.Post("/{id}/schedules", h.CreateMemberSchedule)
				r.Get("/{id}/schedule", h.ResolveSchedule)
				r.Put("/{id}/public-holiday", h.AssignHolidayCalendar)
				r.Get("/{id}/allowances", h.ListAllowances)
				r.Patch("/{id}/allowances/{typeID}/{year}", h.EditAllowance)
				r.Get("/{id}/allowance-configurations", h.ListConfigurations)
				r.Patch("/{id}/allowance-configurations/{typeID}", h.EditConfiguration)
				r.Post("/{id}/recompute", h.Recompute)
			})

			r.Route("/member-schedules", func(r chi.Router) {
				r.Put("/{id}", h.UpdateMemberSchedule)
				r.Delete("/{id}", h.DeleteMemberSchedule)
			})

			r.Route("/allowance-types", func(r chi.Router) {
				r.Get("/", h.ListAllowanceTypes)
				r.Post("/", h.CreateAllowanceType)
			})

			r.Route("/leave-types", func(r chi.Router) {
				r.Get("/", h.ListLeaveTypes)
				r.Post("/", h.CreateLeaveType)
			})

			r.Route("/public-holidays", func(r chi.Router) {
				r.Post("/", h.CreateHolidayCalendar)
				r.Post("/{id}/days", h.AddHolidayDay)
			})

			r.Route("/public-holiday-days", func(r chi.Router) {
				r.Put("/{id}", h.UpdateHolidayDay)
				r.Delete("/{id}", h.DeleteHolidayDay)
			})

			r.Route("/requests", func(r chi.Router) {
				r.Post("/preview", h.PreviewRequest)
				r.Post("/", h.SubmitRequest)
				r.Post("/{id}/approve", h.requestAction(h.workspaces.ApproveRequest))
				r.Post("/{id}/decline", h.requestAction(h.workspaces.DeclineRequest))
				r.Post("/{id}/cancel", h.requestAction(h.workspaces.CancelRequest))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/rollover", h.Rollover)
			})
		})
	})

	return r
}
