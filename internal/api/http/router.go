package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/deadline-engine/internal/api/http/handlers"
	"github.com/spec-kit/deadline-engine/internal/auth"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Delegations    *handlers.DelegationsHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	Sweeps         *handlers.SweepsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole())
	admin := auth.RequireRole(domain.StaffRoleAdmin)

	delegations := api.Group("/delegations", admin)
	delegations.Post("/", cfg.Delegations.Create)
	delegations.Get("/", cfg.Delegations.List)
	delegations.Get("/upcoming-expirations", cfg.Delegations.UpcomingExpirations)
	delegations.Get("/:id", cfg.Delegations.Get)
	delegations.Post("/:id/deactivate", cfg.Delegations.Deactivate)

	tickets := api.Group("/tickets")
	tickets.Post("/:id/sla", cfg.Tickets.AttachSLA)
	tickets.Get("/:id/deadline", cfg.Tickets.Deadline)
	tickets.Post("/:id/timer/stop", cfg.Tickets.StopTimer)
	tickets.Post("/:id/timer/start", cfg.Tickets.StartTimer)
	tickets.Post("/:id/finalize", cfg.Tickets.Finalize)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)

	api.Post("/approvals", cfg.Approvals.Create)

	api.Post("/sweeps/:name", admin, cfg.Sweeps.Run)
}
