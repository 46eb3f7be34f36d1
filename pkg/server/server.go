// Package server exposes the question answering and waste prediction
// services over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/internal/logging"
)

// Config is shared by both services.
type Config struct {
	Addr        string
	CORSOrigins string // comma separated, default "*"
	Logger      *slog.Logger
}

const requestIDKey = "requestid"

func newApp(name string, cfg Config) *fiber.App {
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	app.Use(requestLogger(cfg.Logger))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

// requestLogger puts a request-scoped logger on the user context and logs
// one line per request.
func requestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		id, _ := c.Locals(requestIDKey).(string)
		logger := base.With("request_id", id)
		c.SetUserContext(logging.With(c.UserContext(), logger))

		err := c.Next()
		if err != nil {
			// let the error handler pick the status before it is logged
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(started).Round(time.Microsecond))
		return nil
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		logging.From(c.UserContext()).Error("request failed", logging.ErrAttrs(err)...)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

// Run serves app on addr until ctx is cancelled, then shuts down.
func Run(ctx context.Context, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	logging.From(ctx).Info("listening", "app", app.Config().AppName, "addr", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "listen", goerr.V("addr", addr))
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return goerr.Wrap(err, "shutdown")
		}
		return nil
	}
}
