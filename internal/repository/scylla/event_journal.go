package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
)

var journalSchema = []string{
	`CREATE TABLE IF NOT EXISTS call_events_by_lead (
		lead_id text,
		occurred_at timestamp,
		event_id uuid,
		type text,
		lead_name text,
		phone text,
		provider_call_id text,
		status text,
		attempt int,
		detail text,
		PRIMARY KEY ((lead_id), occurred_at, event_id)
	) WITH CLUSTERING ORDER BY (occurred_at DESC, event_id ASC)`,
	`CREATE TABLE IF NOT EXISTS call_events_by_call (
		provider_call_id text,
		occurred_at timestamp,
		event_id uuid,
		type text,
		lead_id text,
		status text,
		PRIMARY KEY ((provider_call_id), occurred_at, event_id)
	) WITH CLUSTERING ORDER BY (occurred_at DESC, event_id ASC)`,
}

// EventJournal stores call events in Scylla, partitioned by lead and by provider call.
type EventJournal struct {
	session *gocql.Session
}

// NewEventJournal creates a journal.
func NewEventJournal(session *gocql.Session) *EventJournal {
	return &EventJournal{session: session}
}

// EnsureSchema creates the journal tables in the session keyspace.
func (j *EventJournal) EnsureSchema(ctx context.Context) error {
	for _, stmt := range journalSchema {
		if err := j.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("event journal: ensure schema: %w", err)
		}
	}
	return nil
}

// Append writes an event to both tables. Replaying the same event id is a no-op overwrite.
func (j *EventJournal) Append(ctx context.Context, event domain.CallEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	eventID := gocql.UUID(event.ID)

	if err := j.session.Query(`INSERT INTO call_events_by_lead (lead_id, occurred_at, event_id, type, lead_name, phone, provider_call_id, status, attempt, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.LeadID, event.OccurredAt, eventID, string(event.Type), event.LeadName, event.Phone,
		event.ProviderCallID, string(event.Status), event.Attempt, event.Detail,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("event journal: insert call_events_by_lead: %w", err)
	}

	if event.ProviderCallID == "" {
		return nil
	}
	if err := j.session.Query(`INSERT INTO call_events_by_call (provider_call_id, occurred_at, event_id, type, lead_id, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ProviderCallID, event.OccurredAt, eventID, string(event.Type), event.LeadID, string(event.Status),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("event journal: insert call_events_by_call: %w", err)
	}
	return nil
}

// ListByLead returns a lead's events newest first with pagination.
func (j *EventJournal) ListByLead(ctx context.Context, leadID string, limit int, pagingState []byte) ([]domain.CallEvent, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := j.session.Query(`SELECT occurred_at, event_id, type, lead_name, phone, provider_call_id, status, attempt, detail
		FROM call_events_by_lead WHERE lead_id = ?`, leadID).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	events := make([]domain.CallEvent, 0, limit)

	var (
		occurredAt     time.Time
		eventID        gocql.UUID
		eventType      string
		leadName       string
		phone          string
		providerCallID string
		status         string
		attempt        int
		detail         string
	)
	for iter.Scan(&occurredAt, &eventID, &eventType, &leadName, &phone, &providerCallID, &status, &attempt, &detail) {
		events = append(events, domain.CallEvent{
			ID:             uuid.UUID(eventID),
			Type:           domain.CallEventType(eventType),
			LeadID:         leadID,
			LeadName:       leadName,
			Phone:          phone,
			ProviderCallID: providerCallID,
			Status:         domain.LeadStatus(status),
			Attempt:        attempt,
			Detail:         detail,
			OccurredAt:     occurredAt.UTC(),
		})
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("event journal: iter close: %w", err)
	}
	return events, nextState, nil
}
