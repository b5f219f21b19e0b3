package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/api/http/handlers"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Tickets   *handlers.TicketsHandler
	Admin     *handlers.AdminHandler
	Directory *handlers.DirectoryHandler
	PublicAPI *handlers.PublicAPIHandler
	Session   *handlers.SessionMiddleware
	APISecret string
	// TicketFilesDir is served read-only under /tickets/... after the API
	// routes, so attachment links resolve.
	TicketFilesDir string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/api/login", cfg.Auth.Login)
	app.Post("/api/logout", cfg.Auth.Logout)

	// Session middleware is attached per route: a bare Group("") would mount
	// it as an app-wide Use and also guard the key-authenticated API and the
	// attachment files.
	authed := cfg.Session.Handle

	app.Get("/api/user", authed, cfg.Auth.Me)
	app.Get("/api/user/contacts", authed, cfg.Directory.Contact)
	app.Put("/api/user/contacts", authed, cfg.Directory.SaveContact)

	app.Post("/api/tickets", authed, cfg.Tickets.Create)
	app.Get("/api/tickets/my", authed, cfg.Tickets.ListOwn)
	app.Get("/api/tickets/:id<int>", authed, cfg.Tickets.Get)
	app.Put("/api/tickets/:id<int>", authed, cfg.Tickets.Update)
	app.Post("/api/tickets/:id<int>/files", authed, cfg.Tickets.AddFiles)
	app.Delete("/api/tickets/:ticketId<int>/files/:filename", authed, cfg.Tickets.DeleteFile)

	app.Get("/api/problem-types", authed, cfg.Directory.ProblemTypes)
	app.Get("/api/cabinets", authed, cfg.Directory.Cabinets)
	app.Post("/api/cabinets", authed, handlers.RequireAdmin(), cfg.Directory.AddCabinet)

	admin := app.Group("/api/admin", authed, handlers.RequireAdmin())
	admin.Get("/search", cfg.Admin.Search)
	admin.Get("/tickets", cfg.Admin.List)
	admin.Put("/tickets/:id<int>/status", cfg.Admin.ChangeStatus)
	admin.Put("/tickets/:id<int>/assign", cfg.Admin.Assign)
	admin.Post("/tickets/:id<int>/comments", cfg.Admin.AddComment)
	admin.Get("/stats", cfg.Admin.Stats)
	admin.Get("/users", cfg.Admin.Users)

	api := app.Group("/api/v1", handlers.APIKeyMiddleware(cfg.APISecret))
	api.Get("/tickets/search", cfg.PublicAPI.Search)
	api.Get("/tickets", cfg.PublicAPI.List)
	api.Get("/tickets/:id<int>", cfg.PublicAPI.Get)
	api.Get("/tickets/:id<int>/status", cfg.PublicAPI.GetStatus)
	api.Put("/tickets/:id<int>/status", cfg.PublicAPI.PutStatus)
	api.Patch("/tickets/:id<int>", cfg.PublicAPI.Patch)
	api.Post("/tickets/:id<int>/assign", cfg.PublicAPI.Assign)
	api.Get("/tickets/:id<int>/history", cfg.PublicAPI.History)
	api.Get("/stats", cfg.PublicAPI.Stats)
	api.Get("/users", cfg.PublicAPI.Users)

	// Attachment links. Registered after the ticket routes so the
	// three-segment file paths fall through to the file server.
	app.Static("/tickets", cfg.TicketFilesDir)

	app.Use(func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("route", map[string]any{"path": c.OriginalURL()})
	})
}
