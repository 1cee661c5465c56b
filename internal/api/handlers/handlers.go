package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/repository"
	callsvc "github.com/acme/outbound-dialer/internal/service/call"
	"github.com/acme/outbound-dialer/internal/service/report"
	"github.com/acme/outbound-dialer/internal/telephony"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Deps are the services the handlers read from. Journal may be nil.
type Deps struct {
	Leads    repository.LeadStore
	CallLogs repository.CallLogStore
	Journal  repository.EventJournal
	Calls    *callsvc.Service
	Reports  *report.Service
	Provider telephony.Provider

	MaxConcurrent int
	ListLimit     int
	// ResolveAssistant maps an assistant name from a request to a provider id.
	ResolveAssistant func(name string) string
	// Checks are pinged by /healthz, keyed by backend name.
	Checks map[string]func(context.Context) error

	Logger *logger.Logger
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	deps Deps
	log  *logger.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Deps) *HandlerSet {
	if deps.ResolveAssistant == nil {
		deps.ResolveAssistant = func(name string) string { return name }
	}
	if deps.ListLimit <= 0 {
		deps.ListLimit = 100
	}
	lg := deps.Logger
	if lg == nil {
		lg = logger.Nop()
	}
	return &HandlerSet{deps: deps, log: lg}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	v1 := app.Group("/api").Group("/v1")

	leads := v1.Group("/leads")
	leads.Get("/", h.listLeads)
	leads.Get("/:id", h.getLead)
	leads.Get("/:id/events", h.leadEvents)
	leads.Post("/:id/call", h.callLead)

	calls := v1.Group("/calls")
	calls.Get("/", h.listCalls)
	calls.Get("/active", h.activeCalls)
	calls.Post("/", h.triggerCall)
	calls.Post("/recall", h.recallCall)

	v1.Get("/metrics", h.metrics)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.log.WithContext(ctx.UserContext()).Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.deps.Checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
