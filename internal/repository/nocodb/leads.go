package nocodb

import (
	"context"
	"fmt"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// Lead table columns.
const (
	leadID        = "unique_id"
	leadName      = "name"
	leadPhone     = "phone"
	leadEmail     = "email"
	leadAddress   = "address"
	leadStatus    = "status"
	leadScheduled = "fecha_planificada"
	leadAttempts  = "intentos"
	leadCreated   = "CreatedAt"
)

// LeadStore implements repository.LeadStore over a NocoDB table.
type LeadStore struct {
	client *Client
	table  string
}

// NewLeadStore constructs a lead store.
func NewLeadStore(client *Client, table string) *LeadStore {
	return &LeadStore{client: client, table: table}
}

// ListLeads implements repository.LeadStore.
func (s *LeadStore) ListLeads(ctx context.Context, filter repository.LeadFilter) ([]domain.Lead, error) {
	statusConds := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statusConds = append(statusConds, Eq(leadStatus, string(st)))
	}
	var scheduleCond string
	if filter.Unscheduled {
		scheduleCond = Blank(leadScheduled)
	}

	q := Query{Where: And(Or(statusConds...), scheduleCond), Limit: filter.Limit}
	if filter.OldestFirst {
		q.Sort = leadCreated
	}

	rows, err := s.client.List(ctx, s.table, q)
	if err != nil {
		return nil, err
	}
	leads := make([]domain.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, leadFromRecord(row))
	}
	return leads, nil
}

// GetLead implements repository.LeadStore.
func (s *LeadStore) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	if err := Literal(id); err != nil {
		return nil, fmt.Errorf("nocodb: lead: %w", err)
	}
	rows, err := s.client.List(ctx, s.table, Query{Where: Eq(leadID, id), Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("nocodb: lead %s: %w", id, repository.ErrNotFound)
	}
	lead := leadFromRecord(rows[0])
	return &lead, nil
}

// UpdateLeads implements repository.LeadStore.
func (s *LeadStore) UpdateLeads(ctx context.Context, updates []domain.LeadUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	rows := make([]Record, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, leadUpdateRecord(u))
	}
	return s.client.Update(ctx, s.table, rows)
}

func leadFromRecord(r Record) domain.Lead {
	lead := domain.Lead{
		ID:          r.String(leadID, "Id", "id"),
		Name:        r.String(leadName),
		Phone:       r.String(leadPhone),
		Email:       r.String(leadEmail),
		Address:     r.String(leadAddress),
		Status:      domain.ParseLeadStatus(r.String(leadStatus)),
		ScheduledAt: r.Time(leadScheduled),
		Attempts:    r.Int(leadAttempts),
	}
	if created := r.Time(leadCreated, "created_at"); created != nil {
		lead.CreatedAt = *created
	}
	return lead
}

func leadUpdateRecord(u domain.LeadUpdate) Record {
	row := Record{leadID: u.ID}
	if u.Status != "" {
		row[leadStatus] = string(u.Status)
	}
	if u.Attempts != nil {
		row[leadAttempts] = *u.Attempts
	}
	switch {
	case u.ClearSchedule:
		row[leadScheduled] = nil
	case u.ScheduledAt != nil:
		row[leadScheduled] = FormatTime(*u.ScheduledAt)
	}
	return row
}
