package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/group-call-bot/internal/app"
	"github.com/acme/group-call-bot/internal/domain"
	"github.com/acme/group-call-bot/internal/queue"
	callsvc "github.com/acme/group-call-bot/internal/service/call"
	"github.com/acme/group-call-bot/pkg/logger"
)

// CallStarter runs a start-call orchestration.
type CallStarter interface {
	StartCall(ctx context.Context, in callsvc.StartCallInput) (*domain.Outcome, error)
}

// NotificationPublisher forwards platform notifications.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, msg queue.NotificationMessage) error
}

// ReadinessCheck probes one backing dependency.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the collaborators the handlers need. Notifications,
// Metrics and Checks are optional.
type Dependencies struct {
	Service       string
	Logger        *logger.Logger
	Calls         CallStarter
	Notifications NotificationPublisher
	Metrics       http.Handler
	Checks        map[string]ReadinessCheck
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	deps Dependencies
}

// New creates a handler bundle from explicit dependencies.
func New(deps Dependencies) *HandlerSet {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &HandlerSet{deps: deps}
}

// NewHandlerSet creates a handler bundle from the application container.
func NewHandlerSet(container *app.Container) *HandlerSet {
	components := container.Components()

	deps := Dependencies{
		Service: container.Config.App.Name,
		Logger:  container.Logger,
		Calls:   components.Orchestrator,
		Checks:  map[string]ReadinessCheck{},
	}
	if components.Publisher != nil {
		deps.Notifications = components.Publisher
	}
	if components.Metrics != nil {
		deps.Metrics = components.Metrics.Handler()
	}
	if container.Redis != nil {
		client := container.Redis.Inner()
		deps.Checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return New(deps)
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/", h.root)
	app.Get("/healthz", h.ready)
	if h.deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.deps.Metrics))
	}

	api := app.Group("/api")
	api.Get("/health", h.health)
	api.Post("/startcall", h.startCall)
	api.Get("/calling", h.callingProbe)
	api.Post("/calling", h.callingNotification)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code >= fiber.StatusInternalServerError {
		h.deps.Logger.WithContext(ctx.UserContext()).Error("request failed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
	}

	body := fiber.Map{"error": message}
	if sc := trace.SpanContextFromContext(ctx.UserContext()); sc.HasTraceID() {
		body["trace_id"] = sc.TraceID().String()
	}
	return ctx.Status(code).JSON(body)
}

func (h *HandlerSet) root(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"status": "ok", "service": h.deps.Service})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"status": "healthy"})
}

func (h *HandlerSet) ready(ctx *fiber.Ctx) error {
	readyCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.deps.Checks {
		if err := check(readyCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	code, status := fiber.StatusOK, "ok"
	if len(errs) > 0 {
		code, status = fiber.StatusServiceUnavailable, "unavailable"
	}
	return ctx.Status(code).JSON(fiber.Map{"status": status, "errors": errs})
}
