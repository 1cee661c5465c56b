package domain

import "time"

// Ended reasons written by the dialer itself before the provider reports an outcome.
const (
	EndedReasonInitiated = "Call Initiated"
)

// CallLog is one row per dispatch attempt.
type CallLog struct {
	ID              string
	ProviderCallID  string
	LeadName        string
	Phone           string
	CallTime        time.Time
	EndedReason     string
	DurationSeconds int
	Evaluation      string
	Transcript      string
	RecordingURL    string
	Notes           string
}

// Pending reports whether the provider outcome has not been written back yet.
func (c CallLog) Pending() bool {
	return c.EndedReason == EndedReasonInitiated
}

// CallLogUpdate carries the enrichment fields written once a call has ended.
type CallLogUpdate struct {
	ID              string
	EndedReason     string
	DurationSeconds int
	Evaluation      string
	Transcript      string
	RecordingURL    string
}
