package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"

	"github.com/acme/outbound-dialer/internal/api/handlers"
	"github.com/acme/outbound-dialer/internal/app"
)

// Server wraps the Fiber application.
type Server struct {
	app      *fiber.App
	deps     *app.Container
	handlers *handlers.HandlerSet
}

// NewServer constructs a new HTTP server.
func NewServer(deps *app.Container) *Server {
	set := handlers.NewHandlerSet(handlerDeps(deps))

	cfg := fiber.Config{
		ReadTimeout:  deps.Config.HTTP.ReadTimeout,
		WriteTimeout: deps.Config.HTTP.WriteTimeout,
		IdleTimeout:  deps.Config.HTTP.IdleTimeout,
		ErrorHandler: set.ErrorHandler,
	}

	fapp := fiber.New(cfg)
	fapp.Use(otelfiber.Middleware())
	set.Register(fapp)

	return &Server{app: fapp, deps: deps, handlers: set}
}

func handlerDeps(c *app.Container) handlers.Deps {
	stores := c.Stores()
	services := c.Services()
	checks := map[string]func(context.Context) error{}
	if c.Postgres != nil {
		checks["postgres"] = c.Postgres.Ping
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	if c.Scylla != nil {
		checks["scylla"] = c.Scylla.Ping
	}
	if c.Kafka != nil {
		checks["kafka"] = c.Kafka.Ping
	}

	return handlers.Deps{
		Leads:            stores.Leads,
		CallLogs:         stores.CallLogs,
		Journal:          stores.Journal,
		Calls:            services.Call,
		Reports:          services.Report,
		Provider:         c.Provider(),
		MaxConcurrent:    c.Config.Gate.MaxConcurrent,
		ListLimit:        c.Config.Provider.ListLimit,
		ResolveAssistant: c.Config.Provider.AssistantID,
		Checks:           checks,
		Logger:           c.Logger,
	}
}

// Start begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.deps.Config.HTTP.Port)
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
