package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	callsvc "github.com/acme/outbound-dialer/internal/service/call"
	"github.com/acme/outbound-dialer/internal/service/common"
)

type leadResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	Email       string            `json:"email,omitempty"`
	Address     string            `json:"address,omitempty"`
	Status      domain.LeadStatus `json:"status"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Attempts    int               `json:"attempts"`
	CreatedAt   time.Time         `json:"created_at"`
}

type listLeadsResponse struct {
	Leads []leadResponse `json:"leads"`
}

type eventResponse struct {
	ID             uuid.UUID            `json:"id"`
	Type           domain.CallEventType `json:"type"`
	ProviderCallID string               `json:"provider_call_id,omitempty"`
	Status         domain.LeadStatus    `json:"status,omitempty"`
	Attempt        int                  `json:"attempt,omitempty"`
	Detail         string               `json:"detail,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

type listEventsResponse struct {
	Events   []eventResponse `json:"events"`
	NextPage string          `json:"next_page_token,omitempty"`
}

type callLeadRequest struct {
	Assistant string `json:"assistant"`
}

func (h *HandlerSet) listLeads(ctx *fiber.Ctx) error {
	filter := repository.LeadFilter{}
	if raw := ctx.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.ParseLeadStatus(s))
		}
	}
	if limit, err := strconv.Atoi(ctx.Query("limit", "0")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	leads, err := h.deps.Leads.ListLeads(ctx.UserContext(), filter)
	if err != nil {
		return translateError(err)
	}

	resp := listLeadsResponse{Leads: make([]leadResponse, 0, len(leads))}
	for _, lead := range leads {
		resp.Leads = append(resp.Leads, toLeadResponse(lead))
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getLead(ctx *fiber.Ctx) error {
	lead, err := h.deps.Leads.GetLead(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toLeadResponse(*lead))
}

func (h *HandlerSet) leadEvents(ctx *fiber.Ctx) error {
	if h.deps.Journal == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "event journal not configured")
	}
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var pagingState []byte
	if token := ctx.Query("page_token"); token != "" {
		state, err := common.DecodeBase64(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
		pagingState = state
	}

	events, next, err := h.deps.Journal.ListByLead(ctx.UserContext(), ctx.Params("id"), limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := listEventsResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventResponse{
			ID:             e.ID,
			Type:           e.Type,
			ProviderCallID: e.ProviderCallID,
			Status:         e.Status,
			Attempt:        e.Attempt,
			Detail:         e.Detail,
			OccurredAt:     e.OccurredAt,
		})
	}
	if len(next) > 0 {
		resp.NextPage = common.EncodeBase64(next)
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) callLead(ctx *fiber.Ctx) error {
	var req callLeadRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
	}

	res, err := h.deps.Calls.Trigger(ctx.UserContext(), callsvc.TriggerInput{
		LeadID:      ctx.Params("id"),
		AssistantID: h.resolveAssistant(req.Assistant),
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusAccepted).JSON(toDispatchResponse(res))
}

func (h *HandlerSet) resolveAssistant(name string) string {
	if name == "" {
		return ""
	}
	return h.deps.ResolveAssistant(name)
}

func toLeadResponse(lead domain.Lead) leadResponse {
	return leadResponse{
		ID:          lead.ID,
		Name:        lead.Name,
		Phone:       lead.Phone,
		Email:       lead.Email,
		Address:     lead.Address,
		Status:      lead.Status,
		ScheduledAt: lead.ScheduledAt,
		Attempts:    lead.Attempts,
		CreatedAt:   lead.CreatedAt,
	}
}

func parseSince(ctx *fiber.Ctx) (*time.Time, error) {
	if raw := ctx.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
		return &t, nil
	}
	if raw := ctx.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid days %q", raw)
		}
		t := time.Now().UTC().AddDate(0, 0, -days)
		return &t, nil
	}
	return nil, nil
}
