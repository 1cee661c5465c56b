package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	callsvc "github.com/acme/outbound-dialer/internal/service/call"
	"github.com/acme/outbound-dialer/internal/service/common"
	"github.com/acme/outbound-dialer/internal/telephony"
)

type triggerCallRequest struct {
	LeadID    string `json:"lead_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Assistant string `json:"assistant"`
}

type recallRequest struct {
	CallID       string `json:"call_id"`
	Phone        string `json:"phone"`
	Assistant    string `json:"assistant"`
	FirstMessage string `json:"first_message"`
}

type dispatchResponse struct {
	CallID   string `json:"call_id"`
	Phone    string `json:"phone"`
	Attempts int    `json:"attempts"`
}

type recallResponse struct {
	dispatchResponse
	PreviousCallID string `json:"previous_call_id"`
	Interested     bool   `json:"interested"`
	SpeakerName    string `json:"speaker_name,omitempty"`
}

type callLogResponse struct {
	ID              string    `json:"id"`
	ProviderCallID  string    `json:"provider_call_id"`
	LeadName        string    `json:"lead_name"`
	Phone           string    `json:"phone"`
	CallTime        time.Time `json:"call_time"`
	EndedReason     string    `json:"ended_reason"`
	DurationSeconds int       `json:"duration_seconds"`
	Evaluation      string    `json:"evaluation,omitempty"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

type listCallsResponse struct {
	Calls    []callLogResponse `json:"calls"`
	NextPage string            `json:"next_page_token,omitempty"`
}

type activeCallResponse struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	CustomerNumber string    `json:"customer_number"`
	CustomerName   string    `json:"customer_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type activeCallsResponse struct {
	Active        int                  `json:"active"`
	MaxConcurrent int                  `json:"max_concurrent"`
	Calls         []activeCallResponse `json:"calls"`
}

func (h *HandlerSet) listCalls(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err := common.DecodeOffset(ctx.Query("page_token"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid page token")
	}
	since, err := parseSince(ctx)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	logs, err := h.deps.CallLogs.ListCallLogs(ctx.UserContext(), repository.CallLogFilter{
		EndedReason: ctx.Query("ended_reason"),
		Since:       since,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return translateError(err)
	}

	resp := listCallsResponse{Calls: make([]callLogResponse, 0, len(logs))}
	for _, l := range logs {
		resp.Calls = append(resp.Calls, toCallLogResponse(l))
	}
	if len(logs) == limit {
		resp.NextPage = common.EncodeOffset(offset + limit)
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) activeCalls(ctx *fiber.Ctx) error {
	calls, err := h.deps.Provider.ListCalls(ctx.UserContext(), h.deps.ListLimit)
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, "provider call list unavailable")
	}

	resp := activeCallsResponse{MaxConcurrent: h.deps.MaxConcurrent, Calls: []activeCallResponse{}}
	for _, c := range calls {
		if !c.Active() {
			continue
		}
		resp.Calls = append(resp.Calls, toActiveCallResponse(c))
	}
	resp.Active = len(resp.Calls)
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) triggerCall(ctx *fiber.Ctx) error {
	var req triggerCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.deps.Calls.Trigger(ctx.UserContext(), callsvc.TriggerInput{
		LeadID:      req.LeadID,
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		AssistantID: h.resolveAssistant(req.Assistant),
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusAccepted).JSON(toDispatchResponse(res))
}

func (h *HandlerSet) recallCall(ctx *fiber.Ctx) error {
	var req recallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.CallID == "" && req.Phone == "" {
		return fiber.NewError(http.StatusBadRequest, "call_id or phone is required")
	}

	res, err := h.deps.Calls.Recall(ctx.UserContext(), callsvc.RecallInput{
		CallID:       req.CallID,
		Phone:        req.Phone,
		AssistantID:  h.resolveAssistant(req.Assistant),
		FirstMessage: req.FirstMessage,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusAccepted).JSON(recallResponse{
		dispatchResponse: toDispatchResponse(res.Dispatch),
		PreviousCallID:   res.Original.ID,
		Interested:       res.Context.Interested,
		SpeakerName:      res.Context.SpeakerName,
	})
}

func toDispatchResponse(res callsvc.DispatchResult) dispatchResponse {
	return dispatchResponse{CallID: res.CallID, Phone: res.Phone, Attempts: res.Attempts}
}

func toCallLogResponse(l domain.CallLog) callLogResponse {
	return callLogResponse{
		ID:              l.ID,
		ProviderCallID:  l.ProviderCallID,
		LeadName:        l.LeadName,
		Phone:           l.Phone,
		CallTime:        l.CallTime,
		EndedReason:     l.EndedReason,
		DurationSeconds: l.DurationSeconds,
		Evaluation:      l.Evaluation,
		RecordingURL:    l.RecordingURL,
		Notes:           l.Notes,
	}
}

func toActiveCallResponse(c telephony.Call) activeCallResponse {
	return activeCallResponse{
		ID:             c.ID,
		Status:         c.Status,
		CustomerNumber: c.CustomerNumber,
		CustomerName:   c.CustomerName,
		CreatedAt:      c.CreatedAt,
	}
}
