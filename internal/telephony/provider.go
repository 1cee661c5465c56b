package telephony

import (
	"context"
	"fmt"
	"time"
)

// Provider call statuses.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusForwarding = "forwarding"
	StatusEnded      = "ended"
)

// activeStatuses are the statuses that occupy a concurrency slot.
var activeStatuses = map[string]struct{}{
	StatusQueued:     {},
	StatusRinging:    {},
	StatusInProgress: {},
}

// Call is the provider's view of a call.
type Call struct {
	ID             string
	Status         string
	CustomerNumber string
	CustomerName   string
	EndedReason    string
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	Transcript     string
	RecordingURL   string
	Summary        string
	// HasMessages is set when the provider returned a transcript message
	// list; LastMessageOffset is the seconds-from-start of its final entry.
	HasMessages       bool
	LastMessageOffset float64
}

// Active reports whether the call occupies a concurrency slot.
func (c Call) Active() bool {
	_, ok := activeStatuses[c.Status]
	return ok
}

// Ended reports whether the provider has a final outcome for the call.
func (c Call) Ended() bool {
	return c.Status == StatusEnded
}

// DurationSeconds is the last message offset whenever messages exist, even
// when that offset is zero. Without messages it falls back to wall-clock
// timestamps.
func (c Call) DurationSeconds() int {
	if c.HasMessages {
		if c.LastMessageOffset <= 0 {
			return 0
		}
		return int(c.LastMessageOffset + 0.5)
	}
	if c.StartedAt != nil && c.EndedAt != nil && c.EndedAt.After(*c.StartedAt) {
		return int(c.EndedAt.Sub(*c.StartedAt).Seconds() + 0.5)
	}
	return 0
}

// CountActive counts calls occupying a concurrency slot.
func CountActive(calls []Call) int {
	n := 0
	for _, c := range calls {
		if c.Active() {
			n++
		}
	}
	return n
}

// CallRequest asks the provider to dial a customer.
type CallRequest struct {
	Number        string
	CustomerName  string
	AssistantID   string
	PhoneNumberID string
	Variables     map[string]string
	FirstMessage  string
}

// Provider abstracts the voice-AI telephony integration.
type Provider interface {
	CreateCall(ctx context.Context, req CallRequest) (*Call, error)
	ListCalls(ctx context.Context, limit int) ([]Call, error)
	GetCall(ctx context.Context, id string) (*Call, error)
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: http %d: %s", e.StatusCode, e.Message)
}
