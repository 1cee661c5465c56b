package call

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/service/common"
	"github.com/acme/outbound-dialer/internal/telephony"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

var interestSignals = []string{"interesa", "sí", "cuéntame", "dime", "vale", "ok", "de acuerdo", "claro"}

var speakerName = regexp.MustCompile(`(?i)(?:soy el|soy la|me llamo|soy)\s+([\p{L}]+(?:\s+[\p{L}]+){0,2})`)

// RecallContext summarises a previous conversation for the follow-up call.
type RecallContext struct {
	Interested      bool
	SpeakerName     string
	DurationSeconds int
	EndedReason     string
}

// BuildRecallContext inspects the transcript of an ended call.
func BuildRecallContext(call telephony.Call) RecallContext {
	rc := RecallContext{DurationSeconds: call.DurationSeconds(), EndedReason: call.EndedReason}
	for _, line := range strings.Split(call.Transcript, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, "user:") {
			continue
		}
		msg := strings.TrimSpace(line[len("user:"):])
		msgLower := strings.ToLower(msg)
		for _, signal := range interestSignals {
			if strings.Contains(msgLower, signal) {
				rc.Interested = true
				break
			}
		}
		if rc.SpeakerName == "" {
			if m := speakerName.FindStringSubmatch(msg); m != nil {
				rc.SpeakerName = strings.TrimSpace(m[1])
			}
		}
	}
	return rc
}

// Note is the free-text annotation stored with the recall's call log.
func (rc RecallContext) Note(previousCallID string) string {
	interest := "No determinado"
	if rc.Interested {
		interest = "Sí"
	}
	return fmt.Sprintf("Rellamada automática. Llamada anterior: %s. Motivo corte: %s. Interés previo: %s.",
		previousCallID, rc.EndedReason, interest)
}

// FirstMessage fills {nombre} in the template with the speaker's name.
func (rc RecallContext) FirstMessage(template string) string {
	greeting := ""
	if rc.SpeakerName != "" {
		greeting = rc.SpeakerName + ", "
	}
	return strings.ReplaceAll(template, "{nombre}", greeting)
}

// RecallInput identifies the call to follow up: CallID wins over Phone.
type RecallInput struct {
	CallID       string
	Phone        string
	AssistantID  string
	FirstMessage string
}

// RecallResult pairs the original call with the new dispatch.
type RecallResult struct {
	Original telephony.Call
	Context  RecallContext
	Dispatch DispatchResult
}

// Recall re-dials the customer of a previous ended call.
func (s *Service) Recall(ctx context.Context, input RecallInput) (RecallResult, error) {
	original, err := s.findRecallTarget(ctx, input)
	if err != nil {
		return RecallResult{}, err
	}
	if !original.Ended() {
		return RecallResult{}, fmt.Errorf("%w: call %s is still %s", apperrors.ErrConflict, original.ID, original.Status)
	}

	rc := BuildRecallContext(*original)
	firstMessage := input.FirstMessage
	if firstMessage == "" && s.settings.RecallFirstMessage != "" {
		firstMessage = rc.FirstMessage(s.settings.RecallFirstMessage)
	}

	if err := s.acquire(ctx); err != nil {
		return RecallResult{}, err
	}

	lead := domain.Lead{Name: original.CustomerName, Phone: original.CustomerNumber}
	res := s.Dispatch(ctx, lead, Options{AssistantID: input.AssistantID, FirstMessage: firstMessage})
	result := RecallResult{Original: *original, Context: rc, Dispatch: res}
	if !res.Success {
		return result, translateDispatchError(res)
	}

	s.log.WithContext(ctx).Info("recall dispatched",
		zap.String("previous_call_id", original.ID),
		zap.String("call_id", res.CallID),
		zap.Bool("interested", rc.Interested))

	if s.recorder != nil {
		if err := s.recorder.RecordRecall(ctx, *original, res.CallID, rc.Note(original.ID)); err != nil {
			return result, fmt.Errorf("call service: record recall: %w", err)
		}
	}
	return result, nil
}

func (s *Service) findRecallTarget(ctx context.Context, input RecallInput) (*telephony.Call, error) {
	if input.CallID != "" {
		call, err := s.provider.GetCall(ctx, input.CallID)
		if err != nil {
			return nil, fmt.Errorf("call service: get call: %w", err)
		}
		return call, nil
	}

	phone := common.NormalizePhone(input.Phone, s.settings.CountryCode)
	if phone == "" {
		return nil, fmt.Errorf("call service: %q: %w", input.Phone, apperrors.ErrInvalidPhone)
	}
	calls, err := s.provider.ListCalls(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("call service: list calls: %w", err)
	}

	var latest *telephony.Call
	for i := range calls {
		c := calls[i]
		if c.CustomerNumber != phone || !c.Ended() {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = &c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("call service: no ended call to %s: %w", phone, apperrors.ErrNotFound)
	}
	// the listing omits artifacts
	return s.provider.GetCall(ctx, latest.ID)
}
