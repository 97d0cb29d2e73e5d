package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/acme/group-call-bot/internal/api/handlers"
	"github.com/acme/group-call-bot/internal/config"
)

// Server wraps the Fiber application.
type Server struct {
	app      *fiber.App
	cfg      config.HTTPConfig
	handlers *handlers.HandlerSet

	mu      sync.Mutex
	baseCtx context.Context
}

// NewServer constructs a new HTTP server.
func NewServer(cfg config.HTTPConfig, handlers *handlers.HandlerSet) *Server {
	s := &Server{cfg: cfg, handlers: handlers, baseCtx: context.Background()}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	})

	origins := "*"
	if len(cfg.CORSOrigins) > 0 {
		origins = strings.Join(cfg.CORSOrigins, ",")
	}

	app.Use(recover.New())
	app.Use(s.requestContext)
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{AllowOrigins: origins}))
	handlers.Register(app)

	s.app = app
	return s
}

// requestContext roots each request's user context in the server lifetime so
// in-flight orchestrations stop when the server is shutting down. fasthttp
// does not report client disconnects, so a run outlives a caller that hangs up.
func (s *Server) requestContext(c *fiber.Ctx) error {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	c.SetUserContext(base)
	return c.Next()
}

// App exposes the fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins serving HTTP traffic until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
