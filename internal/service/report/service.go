package report

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Badge groups evaluations the way the dashboard colours them.
type Badge string

const (
	BadgePending   Badge = "pending"
	BadgeVoicemail Badge = "voicemail"
	BadgeSuccess   Badge = "success"
	BadgeFail      Badge = "fail"
	BadgeWarning   Badge = "warning"
)

// BadgeFor classifies a free-text evaluation.
func BadgeFor(evaluation string) Badge {
	e := strings.ToLower(strings.TrimSpace(evaluation))
	switch {
	case e == "":
		return BadgePending
	case containsAny(e, "contestador", "voicemail", "buzón"):
		return BadgeVoicemail
	case containsAny(e, "success", "completed", "completada", "confirmada", "ok"):
		return BadgeSuccess
	case containsAny(e, "fail", "fallid", "error", "no contesta", "rechazada"):
		return BadgeFail
	case containsAny(e, "sin datos", "incompleta"):
		return BadgeWarning
	default:
		return BadgePending
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ActiveCounter reports how many provider calls are in flight.
type ActiveCounter interface {
	ActiveCount(ctx context.Context) (int, error)
}

// Service computes dashboard metrics.
type Service struct {
	leads  repository.LeadStore
	logs   repository.CallLogStore
	active ActiveCounter
	log    *logger.Logger
}

// NewService constructs the report service. active may be nil.
func NewService(leads repository.LeadStore, logs repository.CallLogStore, active ActiveCounter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{leads: leads, logs: logs, active: active, log: log}
}

const pageSize = 200

// Metrics aggregates call logs since the given time (all when nil), lead
// counts per status, and the live active-call count (-1 when unknown).
func (s *Service) Metrics(ctx context.Context, since *time.Time) (domain.CallStats, error) {
	stats := domain.CallStats{LeadsByStatus: map[domain.LeadStatus]int64{}, ActiveCalls: -1}

	var totalDuration int64
	for offset := 0; ; offset += pageSize {
		page, err := s.logs.ListCallLogs(ctx, repository.CallLogFilter{Since: since, Limit: pageSize, Offset: offset})
		if err != nil {
			return stats, fmt.Errorf("report: list call logs: %w", err)
		}
		for _, l := range page {
			stats.TotalCalls++
			totalDuration += int64(l.DurationSeconds)
			if l.Pending() {
				stats.Pending++
				continue
			}
			switch ev := strings.ToLower(l.Evaluation); {
			case strings.Contains(ev, "ocupado"):
				stats.Busy++
			case strings.Contains(ev, "no contesta"), strings.Contains(ev, "sin respuesta"):
				stats.NoAnswer++
			default:
				switch BadgeFor(l.Evaluation) {
				case BadgeSuccess:
					stats.Completed++
				case BadgeVoicemail:
					stats.Voicemail++
				case BadgeFail:
					stats.Failed++
				}
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	if stats.TotalCalls > 0 {
		stats.AvgDurationSeconds = math.Round(float64(totalDuration) / float64(stats.TotalCalls))
		stats.SuccessRate = math.Round(float64(stats.Completed) / float64(stats.TotalCalls) * 100)
	}

	leads, err := s.leads.ListLeads(ctx, repository.LeadFilter{})
	if err != nil {
		return stats, fmt.Errorf("report: list leads: %w", err)
	}
	for _, lead := range leads {
		stats.LeadsByStatus[lead.Status]++
	}

	if s.active != nil {
		n, err := s.active.ActiveCount(ctx)
		if err != nil {
			s.log.WithContext(ctx).Warn("active call count unavailable", zap.Error(err))
		} else {
			stats.ActiveCalls = n
		}
	}
	return stats, nil
}
