package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
)

// EventMessage is the wire form of a call event on the events topic.
type EventMessage struct {
	EventID        uuid.UUID `json:"event_id"`
	Type           string    `json:"type"`
	LeadID         string    `json:"lead_id"`
	LeadName       string    `json:"lead_name"`
	Phone          string    `json:"phone"`
	ProviderCallID string    `json:"provider_call_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Attempt        int       `json:"attempt,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEventMessage converts a domain event.
func NewEventMessage(e domain.CallEvent) EventMessage {
	return EventMessage{
		EventID:        e.ID,
		Type:           string(e.Type),
		LeadID:         e.LeadID,
		LeadName:       e.LeadName,
		Phone:          e.Phone,
		ProviderCallID: e.ProviderCallID,
		Status:         string(e.Status),
		Attempt:        e.Attempt,
		Detail:         e.Detail,
		OccurredAt:     e.OccurredAt,
	}
}

// ToDomain converts the message back to a domain event.
func (m EventMessage) ToDomain() domain.CallEvent {
	return domain.CallEvent{
		ID:             m.EventID,
		Type:           domain.CallEventType(m.Type),
		LeadID:         m.LeadID,
		LeadName:       m.LeadName,
		Phone:          m.Phone,
		ProviderCallID: m.ProviderCallID,
		Status:         domain.LeadStatus(m.Status),
		Attempt:        m.Attempt,
		Detail:         m.Detail,
		OccurredAt:     m.OccurredAt,
	}
}
