package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/http/handlers"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/auth"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Tickets  *handlers.TicketsHandler
	Messages *handlers.MessagesHandler
	Events   *handlers.EventsHandler
	Resolver *auth.Resolver
	Metrics  *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api", cfg.Resolver.Handle, auth.RequireAnyRole())
	api.Get("/events", cfg.Events.Since)

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/latest-number", cfg.Tickets.LatestNumber)
	tickets.Get("/stats/summary", cfg.Tickets.Stats)
	tickets.Get("/support-users", auth.RequireSupport(), cfg.Tickets.SupportUsers)

	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id/status", auth.RequireSupport(), cfg.Tickets.ChangeStatus)
	tickets.Put("/:id/priority", auth.RequireSupport(), cfg.Tickets.ChangePriority)
	tickets.Put("/:id/assign", auth.RequireSupport(), cfg.Tickets.Assign)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/messages", cfg.Messages.ListMessages)
	tickets.Post("/:id/messages", cfg.Messages.AppendMessage)
}
