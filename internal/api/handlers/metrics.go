package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/outbound-dialer/internal/domain"
)

type metricsResponse struct {
	TotalCalls         int64                       `json:"total_calls"`
	Completed          int64                       `json:"completed"`
	Failed             int64                       `json:"failed"`
	Busy               int64                       `json:"busy"`
	Voicemail          int64                       `json:"voicemail"`
	NoAnswer           int64                       `json:"no_answer"`
	Pending            int64                       `json:"pending"`
	SuccessRate        float64                     `json:"success_rate"`
	AvgDurationSeconds float64                     `json:"avg_duration_seconds"`
	LeadsByStatus      map[domain.LeadStatus]int64 `json:"leads_by_status"`
	// ActiveCalls is -1 when the provider could not be queried.
	ActiveCalls int `json:"active_calls"`
}

func (h *HandlerSet) metrics(ctx *fiber.Ctx) error {
	since, err := parseSince(ctx)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	stats, err := h.deps.Reports.Metrics(ctx.UserContext(), since)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(metricsResponse{
		TotalCalls:         stats.TotalCalls,
		Completed:          stats.Completed,
		Failed:             stats.Failed,
		Busy:               stats.Busy,
		Voicemail:          stats.Voicemail,
		NoAnswer:           stats.NoAnswer,
		Pending:            stats.Pending,
		SuccessRate:        stats.SuccessRate,
		AvgDurationSeconds: stats.AvgDurationSeconds,
		LeadsByStatus:      stats.LeadsByStatus,
		ActiveCalls:        stats.ActiveCalls,
	})
}
