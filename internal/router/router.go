package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codelab-api/internal/config"
	"github.com/noah-isme/codelab-api/internal/handler"
	"github.com/noah-isme/codelab-api/internal/middleware"
	"github.com/noah-isme/codelab-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	LabHandler        *handler.LabHandler
	MonitorHandler    *handler.MonitorHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Judge (sample runs, submissions, per-submission plagiarism). Execution
	// is the expensive path, so submissions are rate limited per user.
	if deps.SubmissionHandler != nil {
		judge := app.Group("/api/v2/judge", jwtMiddleware, middleware.RateLimit("judge", 30, time.Minute))
		deps.SubmissionHandler.Register(judge)
	}

	// Lab-scoped proctoring, batch plagiarism and live monitoring
	if deps.LabHandler != nil {
		labs := app.Group("/api/v2/labs/:labID", jwtMiddleware)
		deps.LabHandler.Register(labs)

		if deps.MonitorHandler != nil {
			deps.MonitorHandler.Register(labs)
		}

		violations := app.Group("/api/v2", jwtMiddleware, middleware.RequireRole("faculty", "teacher", "admin"))
		deps.LabHandler.RegisterReview(violations)
	}
}
