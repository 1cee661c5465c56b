package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/internal/service/common"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Service assigns dial times to leads.
type Service struct {
	leads       repository.LeadStore
	countryCode string
	now         func() time.Time
	log         *logger.Logger
}

// NewService constructs the scheduling service.
func NewService(leads repository.LeadStore, countryCode string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{leads: leads, countryCode: countryCode, now: time.Now, log: log}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assignment is one lead and its new dial time.
type Assignment struct {
	Lead domain.Lead
	At   time.Time
}

// PlanInput describes a batch of first-time calls.
type PlanInput struct {
	Start   time.Time
	Spacing time.Duration
	Count   int
	DryRun  bool
}

// Plan picks up to Count never-called leads, oldest first, and schedules
// them Spacing apart from Start.
func (s *Service) Plan(ctx context.Context, input PlanInput) ([]Assignment, error) {
	if input.Count <= 0 {
		return nil, apperrors.Invalidf("count must be positive")
	}
	if input.Spacing <= 0 {
		return nil, apperrors.Invalidf("spacing must be positive")
	}
	if input.Start.IsZero() {
		input.Start = s.now()
	}

	candidates, err := s.leads.ListLeads(ctx, repository.LeadFilter{Unscheduled: true, OldestFirst: true})
	if err != nil {
		return nil, fmt.Errorf("schedule: list unscheduled leads: %w", err)
	}

	var plan []Assignment
	for _, lead := range candidates {
		if len(plan) == input.Count {
			break
		}
		if !neverCalled(lead) || common.NormalizePhone(lead.Phone, s.countryCode) == "" {
			continue
		}
		at := input.Start.Add(time.Duration(len(plan)) * input.Spacing).UTC()
		plan = append(plan, Assignment{Lead: lead, At: at})
	}

	if len(plan) > 0 {
		s.log.Info("plan built",
			zap.Int("leads", len(plan)),
			zap.Time("first", plan[0].At),
			zap.Time("last", plan[len(plan)-1].At),
			zap.Bool("dry_run", input.DryRun))
	}
	if input.DryRun || len(plan) == 0 {
		return plan, nil
	}

	updates := make([]domain.LeadUpdate, 0, len(plan))
	for _, a := range plan {
		at := a.At
		updates = append(updates, domain.LeadUpdate{ID: a.Lead.ID, Status: domain.LeadStatusScheduled, ScheduledAt: &at})
	}
	if err := s.leads.UpdateLeads(ctx, updates); err != nil {
		return nil, fmt.Errorf("schedule: apply plan: %w", err)
	}
	return plan, nil
}

// RescheduleInput spreads overdue leads out again.
type RescheduleInput struct {
	Gap      time.Duration
	Interval time.Duration
	DryRun   bool
}

// RescheduleOverdue moves Programado leads whose time has passed (or was
// never set) behind the latest future slot, Interval apart, so they do not
// all become due at once.
func (s *Service) RescheduleOverdue(ctx context.Context, input RescheduleInput) ([]Assignment, error) {
	if input.Interval <= 0 {
		return nil, apperrors.Invalidf("interval must be positive")
	}

	leads, err := s.leads.ListLeads(ctx, repository.LeadFilter{Statuses: []domain.LeadStatus{domain.LeadStatusScheduled}})
	if err != nil {
		return nil, fmt.Errorf("schedule: list scheduled leads: %w", err)
	}

	now := s.now()
	latest := now
	var overdue []domain.Lead
	for _, lead := range leads {
		if lead.Due(now) {
			overdue = append(overdue, lead)
			continue
		}
		if lead.ScheduledAt.After(latest) {
			latest = *lead.ScheduledAt
		}
	}
	if len(overdue) == 0 {
		return nil, nil
	}

	start := latest.Add(input.Gap)
	plan := make([]Assignment, 0, len(overdue))
	updates := make([]domain.LeadUpdate, 0, len(overdue))
	for i, lead := range overdue {
		at := start.Add(time.Duration(i) * input.Interval).UTC()
		plan = append(plan, Assignment{Lead: lead, At: at})
		updates = append(updates, domain.LeadUpdate{ID: lead.ID, ScheduledAt: &at})
	}

	s.log.Info("overdue leads rescheduled",
		zap.Int("leads", len(plan)),
		zap.Time("from", plan[0].At),
		zap.Bool("dry_run", input.DryRun))
	if input.DryRun {
		return plan, nil
	}
	if err := s.leads.UpdateLeads(ctx, updates); err != nil {
		return nil, fmt.Errorf("schedule: apply reschedule: %w", err)
	}
	return plan, nil
}

func neverCalled(lead domain.Lead) bool {
	return (lead.Status == "" || lead.Status == domain.LeadStatusNew) && lead.Attempts == 0
}
