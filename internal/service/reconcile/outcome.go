package reconcile

import (
	"strings"
	"time"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/telephony"
)

// failureMarkers are matched as substrings of the provider's ended reason.
var failureMarkers = []string{
	"failed-to-connect",
	"providerfault",
	"sip-503",
	"service-unavailable",
}

// noContactReasons are matched exactly.
var noContactReasons = map[string]struct{}{
	"customer-busy":           {},
	"customer-did-not-answer": {},
}

// Outcome classifies an ended call from the lead's point of view.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	// OutcomeUnreached covers connection failures and no-contact endings.
	OutcomeUnreached
)

// ClassifyEndedReason decides whether the customer was reached.
func ClassifyEndedReason(reason string) Outcome {
	if _, ok := noContactReasons[reason]; ok {
		return OutcomeUnreached
	}
	for _, marker := range failureMarkers {
		if strings.Contains(reason, marker) {
			return OutcomeUnreached
		}
	}
	return OutcomeCompleted
}

// Action is what reconciliation does to a lead.
type Action string

const (
	ActionSkip     Action = "skip"
	ActionComplete Action = "complete"
	ActionRetry    Action = "retry"
	ActionFail     Action = "fail"
)

// Decision is the pure result of Decide; Apply turns it into a store update.
type Decision struct {
	Lead        domain.Lead
	CallID      string
	EndedReason string
	Action      Action
	Attempts    int
	RetryAt     *time.Time
	Reason      string
}

// Rules parameterise Decide.
type Rules struct {
	// RetryCeiling is the attempt count at which an unreached lead is failed.
	RetryCeiling int
	RetryDelay   time.Duration
}

// Decide maps a lead and its provider call onto a transition. Terminal leads
// and calls without a final outcome are skipped.
func Decide(lead domain.Lead, call *telephony.Call, now time.Time, rules Rules) Decision {
	d := Decision{Lead: lead, Action: ActionSkip, Attempts: lead.Attempts}
	switch {
	case lead.Status.Terminal():
		d.Reason = "lead is terminal"
		return d
	case call == nil:
		d.Reason = "no call to observe"
		return d
	}
	d.CallID = call.ID
	d.EndedReason = call.EndedReason
	if !call.Ended() {
		d.Reason = "call still " + call.Status
		return d
	}

	if ClassifyEndedReason(call.EndedReason) == OutcomeCompleted {
		d.Action = ActionComplete
		return d
	}

	ceiling := rules.RetryCeiling
	if ceiling <= 0 {
		ceiling = 2
	}
	d.Attempts = lead.Attempts + 1
	if d.Attempts >= ceiling {
		d.Action = ActionFail
		return d
	}
	at := now.Add(rules.RetryDelay).UTC()
	d.Action = ActionRetry
	d.RetryAt = &at
	return d
}

// Update renders the decision as a lead patch; ok is false for skips.
func (d Decision) Update() (domain.LeadUpdate, bool) {
	u := domain.LeadUpdate{ID: d.Lead.ID}
	switch d.Action {
	case ActionComplete:
		u.Status = domain.LeadStatusCompleted
	case ActionRetry:
		attempts := d.Attempts
		u.Status = domain.LeadStatusRetry
		u.Attempts = &attempts
		u.ScheduledAt = d.RetryAt
	case ActionFail:
		attempts := d.Attempts
		u.Status = domain.LeadStatusFailed
		u.Attempts = &attempts
		u.ClearSchedule = true
	default:
		return u, false
	}
	return u, true
}

// Evaluation labels written to the call log.
const (
	EvalFailed      = "Fallida"
	EvalBusy        = "Ocupado"
	EvalVoicemail   = "Contestador"
	EvalSilence     = "Sin respuesta"
	EvalNoAnswer    = "No contesta"
	EvalCompleted   = "Completada"
	EvalQuickHangUp = "Colgó rápido"
	EvalError       = "Error"
	EvalNoData      = "Sin datos"
)

// Evaluate grades an ended call from its reason and duration in seconds.
func Evaluate(endedReason string, duration int) string {
	r := strings.ToLower(endedReason)
	switch {
	case strings.Contains(r, "sip") && (strings.Contains(r, "failed") || strings.Contains(r, "error")):
		return EvalFailed
	case endedReason == "customer-busy":
		return EvalBusy
	case endedReason == "voicemail" || endedReason == "machine_detected":
		return EvalVoicemail
	case endedReason == "silence-timed-out":
		if duration > 10 {
			return EvalSilence
		}
		return EvalNoAnswer
	case duration > 0 && duration < 10:
		return EvalNoAnswer
	case (endedReason == "customer-ended-call" || endedReason == "assistant-ended-call") && duration > 30:
		return EvalCompleted
	case endedReason == "customer-ended-call":
		return EvalQuickHangUp
	case endedReason == "assistant-error":
		return EvalError
	case duration > 0:
		return EvalCompleted
	default:
		return EvalNoData
	}
}

var reasonLabels = map[string]string{
	"customer-busy":        "Línea ocupada",
	"customer-ended-call":  "Cliente colgó",
	"assistant-ended-call": "Asistente finalizó",
	"silence-timed-out":    "Sin respuesta (silencio)",
	"voicemail":            "Contestador automático",
	"machine_detected":     "Máquina detectada",
	"assistant-error":      "Error del asistente",
}

// DescribeEndedReason turns a provider reason into the label shown in the call log.
func DescribeEndedReason(reason string) string {
	if reason == "" {
		return "Desconocido"
	}
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "sip") && strings.Contains(r, "failed"):
		return "Sin conexión (SIP)"
	case strings.Contains(r, "sip") && strings.Contains(r, "busy"):
		return "Línea ocupada"
	case strings.Contains(r, "sip") && strings.Contains(r, "503"):
		return "Servicio no disponible"
	}
	if label, ok := reasonLabels[r]; ok {
		return label
	}
	switch {
	case strings.Contains(r, "no-answer") || strings.Contains(r, "noanswer"):
		return "No contesta"
	case strings.Contains(r, "error"):
		parts := strings.Split(reason, ".")
		return "Error: " + parts[len(parts)-1]
	default:
		return reason
	}
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
