package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallEventType enumerates what happened to a lead's call.
type CallEventType string

const (
	CallEventDispatched     CallEventType = "dispatched"
	CallEventDispatchFailed CallEventType = "dispatch_failed"
	CallEventSkipped        CallEventType = "skipped"
	CallEventReconciled     CallEventType = "reconciled"
	CallEventEnriched       CallEventType = "enriched"
)

// CallEvent is an audit record of a dispatch or reconciliation step.
type CallEvent struct {
	ID             uuid.UUID
	Type           CallEventType
	LeadID         string
	LeadName       string
	Phone          string
	ProviderCallID string
	Status         LeadStatus
	Attempt        int
	Detail         string
	OccurredAt     time.Time
}

// NewCallEvent stamps an event with an id and time.
func NewCallEvent(t CallEventType, lead Lead, now time.Time) CallEvent {
	return CallEvent{
		ID:         uuid.New(),
		Type:       t,
		LeadID:     lead.ID,
		LeadName:   lead.Name,
		Phone:      lead.Phone,
		Status:     lead.Status,
		OccurredAt: now.UTC(),
	}
}
