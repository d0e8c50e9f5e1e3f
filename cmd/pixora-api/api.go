// Package main provides the Pixora API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/pixora/pixora/pkg/coordinator"
	"github.com/pixora/pixora/pkg/session"
	"github.com/pixora/pixora/pkg/web"
	"github.com/pixora/pixora/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	coordinator *coordinator.Coordinator
	registry    *workflow.Registry
	sessions    *session.Store
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	coordinator *coordinator.Coordinator,
	registry *workflow.Registry,
	sessions *session.Store,
) *API {
	return &API{
		logger:      logger,
		coordinator: coordinator,
		registry:    registry,
		sessions:    sessions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.coordinator, a.registry, a.sessions, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Pixora API")
	})

	app.Post("/generations", handlers.SubmitGeneration)

	w := app.Group("/workflows")
	w.Get("/:id/status", handlers.GetWorkflowStatus)
	w.Post("/:id/cancel", handlers.CancelWorkflow)

	app.Get("/users/:id/workflows", handlers.GetUserWorkflows)

	s := app.Group("/sessions")
	s.Post("/", handlers.CreateSession)
	s.Get("/:id", handlers.GetSession)
	s.Post("/:id/turns", handlers.AppendSessionTurn)
	s.Patch("/:id/preferences", handlers.PatchSessionPreferences)
	s.Get("/:id/summary", handlers.GetSessionSummary)
	s.Delete("/:id", handlers.CloseSession)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
