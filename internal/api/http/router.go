package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-desk/internal/api/http/handlers"
	"github.com/spec-kit/request-desk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Requests       *handlers.RequestsHandler
	Directory      *handlers.DirectoryHandler
	Sync           *handlers.SyncHandler
	AuthMiddleware *auth.AuthMiddleware
	AuthLimiter    fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	if cfg.AuthLimiter != nil {
		authGroup.Use(cfg.AuthLimiter)
	}
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)

	authGroup.Post("/staff/login", cfg.Staff.Login)
	authGroup.Post("/password/reset/request", cfg.Staff.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Staff.ConfirmPasswordReset)

	protectedAuth := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protectedAuth.Post("/password/change", cfg.Staff.ChangePassword)

	app.Get("/sync/policy", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Sync.Policy)

	departments := app.Group("/departments", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	departments.Get("/", cfg.Directory.ListDepartments)
	departments.Post("/", cfg.Directory.CreateDepartment)
	departments.Patch("/:id", cfg.Directory.UpdateDepartment)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	staff.Get("/", cfg.Directory.ListStaff)
	staff.Post("/", cfg.Directory.CreateStaff)

	requests := app.Group("/requests", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	requests.Post("/", cfg.Requests.Create)
	requests.Get("/", cfg.Requests.List)
	// Registered before the id routes so "by-number" never binds as an id.
	requests.Get("/by-number/:number", cfg.Requests.GetByNumber)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Get("/:id/activities", cfg.Requests.Activities)
	requests.Get("/:id/unread", cfg.Requests.Unread)
	requests.Post("/:id/notes", cfg.Requests.AddNote)
	requests.Post("/:id/acknowledge", cfg.Requests.Acknowledge)
	requests.Post("/:id/transition", cfg.Requests.Transition)
	requests.Post("/:id/assign", cfg.Requests.Assign)
	requests.Post("/:id/escalate", cfg.Requests.Escalate)
	requests.Delete("/:id", cfg.Requests.Delete)
}
