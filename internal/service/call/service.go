package call

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/internal/service/common"
	"github.com/acme/outbound-dialer/internal/service/concurrency"
	"github.com/acme/outbound-dialer/internal/service/retry"
	"github.com/acme/outbound-dialer/internal/telephony"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Settings are the provider-side identifiers used for every call.
type Settings struct {
	PhoneNumberID      string
	DefaultAssistantID string
	CountryCode        string
	RecallFirstMessage string
}

// Recorder persists the effects of a successful dispatch.
type Recorder interface {
	RecordDispatch(ctx context.Context, lead domain.Lead, providerCallID string, attempts int) error
	RecordDispatchFailure(ctx context.Context, lead domain.Lead, attempts int, cause error) error
	RecordRecall(ctx context.Context, original telephony.Call, providerCallID, note string) error
}

// Service dials leads through the provider.
type Service struct {
	provider telephony.Provider
	gate     *concurrency.Gate
	leads    repository.LeadStore
	recorder Recorder
	policy   retry.Policy
	sleep    retry.Sleeper
	settings Settings
	log      *logger.Logger
}

// NewService builds the call dispatcher.
func NewService(provider telephony.Provider, gate *concurrency.Gate, policy retry.Policy, settings Settings, log *logger.Logger) *Service {
	if settings.CountryCode == "" {
		settings.CountryCode = common.DefaultCountryCode
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		provider: provider,
		gate:     gate,
		policy:   policy,
		sleep:    retry.Sleep,
		settings: settings,
		log:      log,
	}
}

// WithSleeper replaces the backoff wait.
func (s *Service) WithSleeper(sl retry.Sleeper) *Service {
	s.sleep = sl
	return s
}

// WithLeads enables Trigger by lead id.
func (s *Service) WithLeads(leads repository.LeadStore) *Service {
	s.leads = leads
	return s
}

// WithRecorder makes Trigger and Recall persist their outcome.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Options tune a single dispatch.
type Options struct {
	AssistantID  string
	FirstMessage string
}

// DispatchResult is the outcome of Dispatch. When Success is false, Err holds
// the last error and Class says whether it was retryable, terminal or unknown.
type DispatchResult struct {
	Success  bool
	CallID   string
	Phone    string
	Attempts int
	Class    telephony.ErrorClass
	Err      error
}

// Dispatch places one call for the lead, retrying transient provider
// failures with backoff. It never consults the concurrency gate; callers
// acquire a slot first.
func (s *Service) Dispatch(ctx context.Context, lead domain.Lead, opts Options) DispatchResult {
	tracer := otel.Tracer("dialer.dispatch")
	ctx, span := tracer.Start(ctx, "call.dispatch", trace.WithAttributes(
		attribute.String("lead.id", lead.ID),
	))
	defer span.End()

	phone := common.NormalizePhone(lead.Phone, s.settings.CountryCode)
	if phone == "" {
		err := fmt.Errorf("call service: %q: %w", lead.Phone, apperrors.ErrInvalidPhone)
		span.SetStatus(codes.Error, err.Error())
		return DispatchResult{Class: telephony.ClassTerminal, Err: err}
	}

	assistant := opts.AssistantID
	if assistant == "" {
		assistant = s.settings.DefaultAssistantID
	}
	if assistant == "" {
		err := apperrors.Invalidf("no assistant configured")
		return DispatchResult{Phone: phone, Class: telephony.ClassTerminal, Err: err}
	}

	req := telephony.CallRequest{
		Number:        phone,
		CustomerName:  lead.Name,
		AssistantID:   assistant,
		PhoneNumberID: s.settings.PhoneNumberID,
		Variables:     leadVariables(lead, phone),
		FirstMessage:  opts.FirstMessage,
	}

	log := s.log.WithContext(ctx).With(zap.String("lead", lead.Name), zap.String("phone", phone))
	var callID string
	attempts, err := retry.Do(ctx, s.policy, s.sleep, telephony.Retryable, func(ctx context.Context, attempt int) error {
		call, err := s.provider.CreateCall(ctx, req)
		if err == nil && (call == nil || call.ID == "") {
			err = errors.New("call service: provider returned no call id")
		}
		if err != nil {
			class := telephony.Classify(err)
			fields := []zap.Field{zap.Int("attempt", attempt), zap.String("class", class.String()), zap.Error(err)}
			if class == telephony.ClassRetryable && attempt < s.policy.MaxAttempts {
				fields = append(fields, zap.Duration("backoff", s.policy.Delay(attempt)))
			}
			log.Warn("dispatch attempt failed", fields...)
			return err
		}
		callID = call.ID
		return nil
	})

	span.SetAttributes(attribute.Int("dispatch.attempts", attempts))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return DispatchResult{Phone: phone, Attempts: attempts, Class: telephony.Classify(err), Err: err}
	}

	span.SetAttributes(attribute.String("call.id", callID))
	log.Info("call dispatched", zap.String("call_id", callID), zap.Int("attempts", attempts))
	return DispatchResult{Success: true, CallID: callID, Phone: phone, Attempts: attempts}
}

// TriggerInput identifies a single lead to call on demand, either by id or
// by inline contact details.
type TriggerInput struct {
	LeadID      string
	Name        string
	Phone       string
	Email       string
	Address     string
	AssistantID string
}

// Trigger dials one lead after a single fail-closed capacity check.
func (s *Service) Trigger(ctx context.Context, input TriggerInput) (DispatchResult, error) {
	lead, err := s.resolveLead(ctx, input)
	if err != nil {
		return DispatchResult{}, err
	}
	if lead.Status.Terminal() {
		return DispatchResult{}, fmt.Errorf("%w: lead %s is %s", apperrors.ErrConflict, lead.ID, lead.Status)
	}
	// The previous call's outcome is settled by the reconciler, never by a second dial.
	if lead.Status.InFlight() {
		return DispatchResult{}, fmt.Errorf("%w: lead %s has a call in flight (%s)", apperrors.ErrConflict, lead.ID, lead.Status)
	}
	if err := s.acquire(ctx); err != nil {
		return DispatchResult{}, err
	}

	res := s.Dispatch(ctx, lead, Options{AssistantID: input.AssistantID})
	if s.recorder != nil {
		if res.Success {
			if err := s.recorder.RecordDispatch(ctx, lead, res.CallID, res.Attempts); err != nil {
				return res, fmt.Errorf("call service: record dispatch: %w", err)
			}
		} else if err := s.recorder.RecordDispatchFailure(ctx, lead, res.Attempts, res.Err); err != nil {
			s.log.WithContext(ctx).Warn("record dispatch failure", zap.Error(err))
		}
	}
	if !res.Success {
		return res, translateDispatchError(res)
	}
	return res, nil
}

func (s *Service) resolveLead(ctx context.Context, input TriggerInput) (domain.Lead, error) {
	if input.LeadID != "" {
		if s.leads == nil {
			return domain.Lead{}, apperrors.Invalidf("lead lookup not available")
		}
		lead, err := s.leads.GetLead(ctx, input.LeadID)
		if err != nil {
			return domain.Lead{}, fmt.Errorf("call service: get lead: %w", err)
		}
		return *lead, nil
	}
	if strings.TrimSpace(input.Phone) == "" {
		return domain.Lead{}, apperrors.Invalidf("phone number is required")
	}
	return domain.Lead{Name: input.Name, Phone: input.Phone, Email: input.Email, Address: input.Address}, nil
}

// acquire performs one capacity check. An unknown count is treated as full.
func (s *Service) acquire(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}
	res, err := s.gate.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: active call count unavailable: %v", apperrors.ErrSlotUnavailable, err)
	}
	if !res.Available {
		return fmt.Errorf("%w: %d active calls", apperrors.ErrSlotUnavailable, res.Active)
	}
	return nil
}

func translateDispatchError(res DispatchResult) error {
	switch {
	case errors.Is(res.Err, apperrors.ErrInvalidPhone), errors.Is(res.Err, apperrors.ErrValidation):
		return res.Err
	case res.Class == telephony.ClassRetryable:
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, res.Err)
	case res.Class == telephony.ClassTerminal && rejectedRequest(res.Err):
		return fmt.Errorf("%w: provider rejected the call: %v", apperrors.ErrValidation, res.Err)
	default:
		return fmt.Errorf("call service: dispatch: %w", res.Err)
	}
}

// rejectedRequest reports a provider 4xx, meaning the request itself was refused.
func rejectedRequest(err error) bool {
	var apiErr *telephony.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// leadVariables are the per-lead values the assistant prompt interpolates.
func leadVariables(lead domain.Lead, phone string) map[string]string {
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		name = "Cliente"
	}
	city := strings.TrimSpace(lead.Address)
	if city == "" {
		city = "su localidad"
	}
	return map[string]string{
		"nombre":         name,
		"empresa":        name,
		"ciudad":         city,
		"tel_contacto":   phone,
		"correo_cliente": strings.TrimSpace(lead.Email),
	}
}
