package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/telephony"
)

func TestClassifyEndedReason(t *testing.T) {
	tests := map[string]Outcome{
		"customer-busy":           OutcomeUnreached,
		"customer-did-not-answer": OutcomeUnreached,
		"call.in-progress.error-sip-telephony-provider-failed-to-connect-call": OutcomeUnreached,
		"call.start.error-vapifault-providerfault":                             OutcomeUnreached,
		"pipeline-error-service-unavailable":                                   OutcomeUnreached,
		"customer-ended-call":                                                  OutcomeCompleted,
		"voicemail":                                                            OutcomeCompleted,
		"customer-busy-ish":                                                    OutcomeCompleted,
		"":                                                                     OutcomeCompleted,
	}
	for reason, want := range tests {
		assert.Equal(t, want, ClassifyEndedReason(reason), reason)
	}
}

func TestDecideSkipsTerminalAndLiveCalls(t *testing.T) {
	now := time.Now()
	rules := Rules{RetryCeiling: 2, RetryDelay: 30 * time.Minute}

	for _, status := range []domain.LeadStatus{domain.LeadStatusCompleted, domain.LeadStatusFailed} {
		d := Decide(domain.Lead{Status: status}, &telephony.Call{Status: telephony.StatusEnded, EndedReason: "customer-busy"}, now, rules)
		assert.Equal(t, ActionSkip, d.Action)
		_, ok := d.Update()
		assert.False(t, ok)
	}

	d := Decide(domain.Lead{Status: domain.LeadStatusCalling}, &telephony.Call{Status: telephony.StatusQueued}, now, rules)
	assert.Equal(t, ActionSkip, d.Action)

	d = Decide(domain.Lead{Status: domain.LeadStatusCalling}, nil, now, rules)
	assert.Equal(t, ActionSkip, d.Action)
}

func TestDecideRetryCeiling(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	rules := Rules{RetryCeiling: 2, RetryDelay: 30 * time.Minute}
	busy := &telephony.Call{ID: "c", Status: telephony.StatusEnded, EndedReason: "customer-busy"}

	d := Decide(domain.Lead{ID: "L", Status: domain.LeadStatusCalling}, busy, now, rules)
	assert.Equal(t, ActionRetry, d.Action)
	u, ok := d.Update()
	assert.True(t, ok)
	assert.Equal(t, domain.LeadStatusRetry, u.Status)
	assert.Equal(t, 1, *u.Attempts)
	assert.Equal(t, now.Add(30*time.Minute), *u.ScheduledAt)

	d = Decide(domain.Lead{ID: "L", Status: domain.LeadStatusCalling, Attempts: 1}, busy, now, rules)
	assert.Equal(t, ActionFail, d.Action)
	u, _ = d.Update()
	assert.Equal(t, domain.LeadStatusFailed, u.Status)
	assert.Equal(t, 2, *u.Attempts)
	assert.True(t, u.ClearSchedule)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		reason   string
		duration int
		want     string
	}{
		{"call.in-progress.error-sip-outbound-call-failed-to-connect", 0, EvalFailed},
		{"customer-busy", 0, EvalBusy},
		{"voicemail", 25, EvalVoicemail},
		{"machine_detected", 3, EvalVoicemail},
		{"silence-timed-out", 40, EvalSilence},
		{"silence-timed-out", 8, EvalNoAnswer},
		{"customer-ended-call", 5, EvalNoAnswer},
		{"customer-ended-call", 95, EvalCompleted},
		{"assistant-ended-call", 31, EvalCompleted},
		{"customer-ended-call", 20, EvalQuickHangUp},
		{"assistant-error", 0, EvalError},
		{"exceeded-max-duration", 600, EvalCompleted},
		{"", 0, EvalNoData},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Evaluate(tt.reason, tt.duration), "%s/%d", tt.reason, tt.duration)
	}
}

func TestDescribeEndedReason(t *testing.T) {
	assert.Equal(t, "Desconocido", DescribeEndedReason(""))
	assert.Equal(t, "Sin conexión (SIP)", DescribeEndedReason("call.in-progress.error-sip-outbound-call-failed-to-connect"))
	assert.Equal(t, "Servicio no disponible", DescribeEndedReason("sip-503"))
	assert.Equal(t, "Contestador automático", DescribeEndedReason("voicemail"))
	assert.Equal(t, "No contesta", DescribeEndedReason("customer-did-not-answer-noanswer"))
	assert.Equal(t, "Error: pipeline-error-openai-llm-failed", DescribeEndedReason("call.in-progress.pipeline-error-openai-llm-failed"))
	assert.Equal(t, "exceeded-max-duration", DescribeEndedReason("exceeded-max-duration"))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "Colg", Truncate("Colgó rápido", 4))
	assert.Equal(t, "Colgó", Truncate("Colgó rápido", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
