// Package api exposes the operator endpoints over fiber.
package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
)

func NewApp(post *handlers.PostHandler, auth *middleware.AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          10 * time.Minute,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())

	ops := app.Group("/ops")
	ops.Use(auth.AuthMiddleware())

	ops.Get("/posts/upcoming", post.ListUpcoming)
	ops.Post("/posts/:id/trigger", post.TriggerPost)
	ops.Post("/posts/:id/retry", post.RetryPost)
	ops.Post("/posts/:id/status", post.CheckStatus)

	return app
}
