package repository

import (
	"context"
	"time"

	"github.com/acme/outbound-dialer/internal/domain"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// LeadFilter narrows a lead listing. Empty fields match everything.
type LeadFilter struct {
	Statuses []domain.LeadStatus
	// Unscheduled keeps only leads without fecha_planificada.
	Unscheduled bool
	// OldestFirst sorts by creation time ascending; the default is store order.
	OldestFirst bool
	Limit       int
}

// LeadStore reads and patches leads.
type LeadStore interface {
	ListLeads(ctx context.Context, filter LeadFilter) ([]domain.Lead, error)
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	UpdateLeads(ctx context.Context, updates []domain.LeadUpdate) error
}

// CallLogFilter narrows a call-log listing. Results are newest first.
type CallLogFilter struct {
	EndedReason string
	Since       *time.Time
	Limit       int
	Offset      int
}

// CallLogStore persists one row per dispatch.
type CallLogStore interface {
	ListCallLogs(ctx context.Context, filter CallLogFilter) ([]domain.CallLog, error)
	FindByProviderCallID(ctx context.Context, providerCallID string) (*domain.CallLog, error)
	LatestForPhone(ctx context.Context, phone string) (*domain.CallLog, error)
	AppendCallLog(ctx context.Context, log *domain.CallLog) error
	UpdateCallLogs(ctx context.Context, updates []domain.CallLogUpdate) error
}

// EventJournal keeps an append-only history of call events.
type EventJournal interface {
	Append(ctx context.Context, event domain.CallEvent) error
	ListByLead(ctx context.Context, leadID string, limit int, pagingState []byte) ([]domain.CallEvent, []byte, error)
}
