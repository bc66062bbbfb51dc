package listsvc

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/remote"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const (
	bodyLimit       = 4 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
)

// NewApp builds the HTTP API around svc.
func NewApp(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			fmt.Fprintf(logger.Writer(logger.LevelError), "listsvc: panic in %s %s: %v\n%s", c.Method(), c.Path(), e, debug.Stack())
		},
	}))
	app.Use(requestid.New())
	app.Use(requestLogger)

	h := &handlers{svc: svc}
	app.Get("/healthz", h.health)
	app.Post("/api/lists", h.create)
	app.Get("/api/lists/:id", h.get)
	app.Put("/api/lists/:id", h.update)

	return app
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listsvc: listening on %s", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("listsvc: shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	return <-errCh
}

type handlers struct {
	svc *Service
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) create(c *fiber.Ctx) error {
	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	created, err := h.svc.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *handlers) get(c *fiber.Ctx) error {
	doc, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (h *handlers) update(c *fiber.Ctx) error {
	var in UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	result, err := h.svc.Update(c.UserContext(), c.Params("id"), c.Get(remote.WriteSecretHeader), in)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// errorHandler maps service errors to status codes. Details of 5xx errors
// stay in the log.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, message = fe.Code, fe.Message
	case errors.Is(err, ErrNotFound):
		code, message = fiber.StatusNotFound, err.Error()
	case errors.Is(err, ErrForbidden):
		code, message = fiber.StatusForbidden, err.Error()
	case errors.Is(err, ErrInvalid):
		code, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, ErrExists):
		code, message = fiber.StatusConflict, err.Error()
	}

	if code >= fiber.StatusInternalServerError {
		logger.Error("listsvc: %s %s: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			c.Status(fiber.StatusInternalServerError)
		}
	}
	logger.Debug("listsvc: %s %s %d %s id=%s", c.Method(), c.Path(), c.Response().StatusCode(),
		time.Since(start).Round(time.Microsecond), c.GetRespHeader(fiber.HeaderXRequestID))
	return nil
}
