package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/hackhub-api/internal/config"
	"github.com/noah-isme/hackhub-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AnalysisHandler   *handler.AnalysisHandler
	SubmissionHandler *handler.SubmissionHandler
	ActivityHandler   *handler.ActivityHandler
	SeedHandler       *handler.SeedHandler
	JWTMiddleware     fiber.Handler
	HealthChecks      []handler.HealthDependency
	MetricsHandler    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks...))

	if deps.MetricsHandler != nil {
		app.Get("/metrics", deps.MetricsHandler)
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	analysis := api.Group("/analysis", jwtMiddleware)
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(analysis.Group("/activity"))
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.Register(analysis)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions", jwtMiddleware))
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}
}
