package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskboard/task-service/internal/api/http/handlers"
	"github.com/taskboard/task-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	BasePath       string
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tasks          *handlers.TasksHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes. Probes, metrics and the index live at the root;
// the API is mounted under BasePath.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Health.Index)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group(cfg.BasePath)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	tasks := api.Group("/tasks", cfg.AuthMiddleware.Handle)
	tasks.Get("/", cfg.Tasks.ListTasks)
	tasks.Post("/", cfg.Tasks.CreateTask)
	// must precede /:id
	tasks.Get("/stats", cfg.Tasks.Stats)
	tasks.Get("/:id", cfg.Tasks.GetTask)
	tasks.Put("/:id", cfg.Tasks.UpdateTask)
	tasks.Delete("/:id", cfg.Tasks.DeleteTask)
}
