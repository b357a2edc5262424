package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Checks      *handlers.ChecksHandler
	Assignments *handlers.AssignmentsHandler
	// AuthMiddleware is optional; routes are public when nil.
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1")
	control := []fiber.Handler{}
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.Handle)
		api.Use(auth.RequireRole(domain.UserRoleAdmin, domain.UserRoleCompany, domain.UserRoleControl))
		control = append(control, auth.RequireControl())
	}

	checks := api.Group("/checks")
	checks.Post("/", append(control, cfg.Checks.CreateCheck)...)
	checks.Get("/", cfg.Checks.ListChecks)
	checks.Get("/:id", cfg.Checks.GetCheck)

	staff := api.Group("/event-staff")
	staff.Post("/", append(control, cfg.Assignments.CreateAssignment)...)
	staff.Get("/", cfg.Assignments.ListAssignments)
	staff.Get("/:id", cfg.Assignments.GetAssignment)
	staff.Get("/:id/checks", cfg.Assignments.ListAssignmentChecks)
}
