package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/api/http/handlers"
	"github.com/assetdesk/ticket-lifecycle/internal/auth"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	PublicTickets  *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Notifications  *handlers.NotificationsHandler
	Assignment     *handlers.AssignmentHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/auth/staff/login", cfg.Staff.Login)

	public := app.Group("/ticketing/public/tickets")
	public.Post("/", cfg.PublicTickets.CreateTicket)
	public.Get("/:number", cfg.PublicTickets.GetTicket)
	public.Post("/:number/reply", cfg.PublicTickets.Reply)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireStaffRole()}

	staff := app.Group("/staff", authenticated...)
	staff.Get("/me", cfg.Staff.Me)
	staff.Get("/engineers", cfg.Staff.ListEngineers)
	staff.Post("/engineers", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.Staff.CreateEngineer)
	staff.Get("/departments", cfg.Staff.ListDepartments)
	staff.Post("/departments", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.Staff.CreateDepartment)
	staff.Patch("/departments/:id", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.Staff.UpdateDepartmentStatus)

	notifications := app.Group("/notifications", authenticated...)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Put("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Put("/:id/read", cfg.Notifications.MarkRead)

	tickets := app.Group("/ticketing/tickets", authenticated...)
	tickets.Post("/", cfg.StaffTickets.CreateTicket)
	tickets.Get("/:id", cfg.StaffTickets.GetTicket)
	tickets.Get("/:id/thread", cfg.StaffTickets.ListThread)
	tickets.Post("/:id/reply", cfg.StaffTickets.Reply)
	tickets.Post("/:id/status", cfg.StaffTickets.ChangeStatus)
	tickets.Post("/:id/close", cfg.StaffTickets.Close)
	tickets.Post("/:id/reopen", cfg.StaffTickets.Reopen)
	tickets.Post("/:id/accept", cfg.StaffTickets.Accept)
	tickets.Post("/:id/decline", cfg.StaffTickets.Decline)
	tickets.Post("/:id/escalate", cfg.StaffTickets.Escalate)

	assignment := app.Group("/ticketing/assignment", append(authenticated, auth.RequireDispatcher())...)
	assignment.Get("/suggest-reassign/:ticketId", cfg.Assignment.SuggestReassign)
	assignment.Post("/reassign", cfg.Assignment.Reassign)
}
