package schedule

import (
	"testing"
	"time"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository/memory"
)

var now = time.Date(2025, 2, 15, 18, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestPlanPicksOldestNeverCalledLeads(t *testing.T) {
	store := memory.NewStore(
		domain.Lead{ID: "young", Phone: "600000001", CreatedAt: now.Add(-time.Hour)},
		domain.Lead{ID: "old", Phone: "600000002", Status: domain.LeadStatusNew, CreatedAt: now.Add(-48 * time.Hour)},
		domain.Lead{ID: "called", Phone: "600000003", Status: domain.LeadStatusCompleted, CreatedAt: now.Add(-72 * time.Hour)},
		domain.Lead{ID: "nophone", Phone: "0", CreatedAt: now.Add(-96 * time.Hour)},
		domain.Lead{ID: "planned", Phone: "600000004", ScheduledAt: at(time.Hour), CreatedAt: now.Add(-96 * time.Hour)},
		domain.Lead{ID: "third", Phone: "600000005", CreatedAt: now.Add(-30 * time.Minute)},
	)
	svc := NewService(store, "34", nil).WithClock(func() time.Time { return now })

	start := time.Date(2025, 2, 16, 8, 0, 0, 0, time.UTC)
	plan, err := svc.Plan(testContext(t), PlanInput{Start: start, Spacing: 2 * time.Minute, Count: 2})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(plan))
	}
	if plan[0].Lead.ID != "old" || plan[1].Lead.ID != "young" {
		t.Fatalf("unexpected order: %s, %s", plan[0].Lead.ID, plan[1].Lead.ID)
	}
	if !plan[1].At.Equal(start.Add(2 * time.Minute)) {
		t.Fatalf("expected second slot at +2m, got %v", plan[1].At)
	}

	for _, l := range store.Leads() {
		switch l.ID {
		case "old", "young":
			if l.Status != domain.LeadStatusScheduled || l.ScheduledAt == nil {
				t.Fatalf("lead %s not scheduled: %+v", l.ID, l)
			}
		case "third":
			if l.ScheduledAt != nil {
				t.Fatalf("lead %s should not be scheduled", l.ID)
			}
		}
	}
}

func TestPlanDryRunWritesNothing(t *testing.T) {
	store := memory.NewStore(domain.Lead{ID: "a", Phone: "600000001"})
	svc := NewService(store, "34", nil)

	plan, err := svc.Plan(testContext(t), PlanInput{Start: now, Spacing: time.Minute, Count: 10, DryRun: true})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(plan))
	}
	if store.Leads()[0].ScheduledAt != nil {
		t.Fatalf("dry run must not write")
	}
}

func TestRescheduleOverdueStaggersAfterLatestFutureSlot(t *testing.T) {
	store := memory.NewStore(
		domain.Lead{ID: "past", Status: domain.LeadStatusScheduled, ScheduledAt: at(-2 * time.Hour)},
		domain.Lead{ID: "null", Status: domain.LeadStatusScheduled},
		domain.Lead{ID: "future", Status: domain.LeadStatusScheduled, ScheduledAt: at(40 * time.Minute)},
		domain.Lead{ID: "other", Status: domain.LeadStatusRetry, ScheduledAt: at(-time.Hour)},
	)
	svc := NewService(store, "34", nil).WithClock(func() time.Time { return now })

	plan, err := svc.RescheduleOverdue(testContext(t), RescheduleInput{Gap: 5 * time.Minute, Interval: 3 * time.Minute})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 overdue leads, got %d", len(plan))
	}

	want := map[string]time.Time{
		"past": now.Add(45 * time.Minute),
		"null": now.Add(48 * time.Minute),
	}
	for _, l := range store.Leads() {
		if exp, ok := want[l.ID]; ok {
			if l.ScheduledAt == nil || !l.ScheduledAt.Equal(exp) {
				t.Fatalf("lead %s: expected %v, got %v", l.ID, exp, l.ScheduledAt)
			}
			if l.Status != domain.LeadStatusScheduled {
				t.Fatalf("lead %s status changed to %s", l.ID, l.Status)
			}
		}
		if l.ID == "other" && !l.ScheduledAt.Equal(now.Add(-time.Hour)) {
			t.Fatalf("non-Programado lead must not move")
		}
	}
}

func TestRescheduleOverdueStartsFromNowWithoutFutureSlots(t *testing.T) {
	store := memory.NewStore(domain.Lead{ID: "past", Status: domain.LeadStatusScheduled, ScheduledAt: at(-time.Minute)})
	svc := NewService(store, "34", nil).WithClock(func() time.Time { return now })

	plan, err := svc.RescheduleOverdue(testContext(t), RescheduleInput{Gap: 5 * time.Minute, Interval: 3 * time.Minute, DryRun: true})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if len(plan) != 1 || !plan[0].At.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}
