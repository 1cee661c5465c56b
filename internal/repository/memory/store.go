package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// Store keeps leads, call logs and events in process memory. It backs local
// runs with store.driver=memory and the service tests.
type Store struct {
	mu      sync.RWMutex
	leads   []domain.Lead
	logs    []domain.CallLog
	events  []domain.CallEvent
	nextLog int
}

// NewStore seeds a store with the given leads.
func NewStore(leads ...domain.Lead) *Store {
	s := &Store{}
	s.leads = append(s.leads, leads...)
	return s
}

// AddCallLogs seeds call logs in the given order.
func (s *Store) AddCallLogs(logs ...domain.CallLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		if l.ID == "" {
			s.nextLog++
			l.ID = strconv.Itoa(s.nextLog)
		}
		s.logs = append(s.logs, l)
	}
}

// ListLeads implements repository.LeadStore.
func (s *Store) ListLeads(_ context.Context, filter repository.LeadFilter) ([]domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		if !matchesStatus(lead.Status, filter.Statuses) {
			continue
		}
		if filter.Unscheduled && lead.ScheduledAt != nil {
			continue
		}
		out = append(out, lead)
	}
	if filter.OldestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetLead implements repository.LeadStore.
func (s *Store) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lead := range s.leads {
		if lead.ID == id {
			l := lead
			return &l, nil
		}
	}
	return nil, fmt.Errorf("memory: lead %s: %w", id, repository.ErrNotFound)
}

// UpdateLeads implements repository.LeadStore.
func (s *Store) UpdateLeads(_ context.Context, updates []domain.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		idx := -1
		for i := range s.leads {
			if s.leads[i].ID == u.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("memory: update lead %s: %w", u.ID, repository.ErrNotFound)
		}
		lead := &s.leads[idx]
		if u.Status != "" {
			lead.Status = u.Status
		}
		if u.Attempts != nil {
			lead.Attempts = *u.Attempts
		}
		if u.ScheduledAt != nil {
			at := *u.ScheduledAt
			lead.ScheduledAt = &at
		}
		if u.ClearSchedule {
			lead.ScheduledAt = nil
		}
	}
	return nil
}

// ListCallLogs implements repository.CallLogStore.
func (s *Store) ListCallLogs(_ context.Context, filter repository.CallLogFilter) ([]domain.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CallLog, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if filter.EndedReason != "" && l.EndedReason != filter.EndedReason {
			continue
		}
		if filter.Since != nil && l.CallTime.Before(*filter.Since) {
			continue
		}
		out = append(out, l)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// FindByProviderCallID implements repository.CallLogStore.
func (s *Store) FindByProviderCallID(_ context.Context, providerCallID string) (*domain.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].ProviderCallID == providerCallID {
			l := s.logs[i]
			return &l, nil
		}
	}
	return nil, fmt.Errorf("memory: call log %s: %w", providerCallID, repository.ErrNotFound)
}

// LatestForPhone implements repository.CallLogStore.
func (s *Store) LatestForPhone(_ context.Context, phone string) (*domain.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.CallLog
	for i := range s.logs {
		l := s.logs[i]
		if l.Phone != phone || l.ProviderCallID == "" {
			continue
		}
		if latest == nil || !l.CallTime.Before(latest.CallTime) {
			latest = &l
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("memory: call log for %s: %w", phone, repository.ErrNotFound)
	}
	return latest, nil
}

// AppendCallLog implements repository.CallLogStore.
func (s *Store) AppendCallLog(_ context.Context, log *domain.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	log.ID = strconv.Itoa(s.nextLog)
	s.logs = append(s.logs, *log)
	return nil
}

// UpdateCallLogs implements repository.CallLogStore.
func (s *Store) UpdateCallLogs(_ context.Context, updates []domain.CallLogUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		found := false
		for i := range s.logs {
			if s.logs[i].ID != u.ID {
				continue
			}
			l := &s.logs[i]
			l.EndedReason = u.EndedReason
			l.DurationSeconds = u.DurationSeconds
			l.Evaluation = u.Evaluation
			if u.Transcript != "" {
				l.Transcript = u.Transcript
			}
			if u.RecordingURL != "" {
				l.RecordingURL = u.RecordingURL
			}
			found = true
			break
		}
		if !found {
			return fmt.Errorf("memory: update call log %s: %w", u.ID, repository.ErrNotFound)
		}
	}
	return nil
}

// Append implements repository.EventJournal.
func (s *Store) Append(_ context.Context, event domain.CallEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByLead implements repository.EventJournal. Paging state is the decimal
// offset of the next event.
func (s *Store) ListByLead(_ context.Context, leadID string, limit int, pagingState []byte) ([]domain.CallEvent, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if len(pagingState) > 0 {
		n, err := strconv.Atoi(string(pagingState))
		if err != nil {
			return nil, nil, fmt.Errorf("memory: invalid paging state: %w", err)
		}
		start = n
	}

	var matched []domain.CallEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].LeadID == leadID {
			matched = append(matched, s.events[i])
		}
	}
	if start >= len(matched) {
		return nil, nil, nil
	}
	matched = matched[start:]
	if limit <= 0 || len(matched) <= limit {
		return matched, nil, nil
	}
	return matched[:limit], []byte(strconv.Itoa(start + limit)), nil
}

// Leads returns a snapshot of every lead.
func (s *Store) Leads() []domain.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Lead(nil), s.leads...)
}

// CallLogs returns a snapshot of every call log in insertion order.
func (s *Store) CallLogs() []domain.CallLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CallLog(nil), s.logs...)
}

// Events returns a snapshot of every journaled event.
func (s *Store) Events() []domain.CallEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CallEvent(nil), s.events...)
}

func matchesStatus(status domain.LeadStatus, statuses []domain.LeadStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
