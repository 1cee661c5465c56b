package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/internal/service/common"
	"github.com/acme/outbound-dialer/internal/service/retry"
	"github.com/acme/outbound-dialer/internal/telephony"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Settings tune reconciliation and enrichment.
type Settings struct {
	Rules           Rules
	CountryCode     string
	EnrichThrottle  time.Duration
	TranscriptLimit int
	// ReadPolicy retries provider reads that were rate limited.
	ReadPolicy retry.Policy
}

// Service writes dispatch results back to the stores and later reconciles
// leads with the provider's final outcome.
type Service struct {
	leads     repository.LeadStore
	logs      repository.CallLogStore
	provider  telephony.Provider
	publisher queue.Publisher
	settings  Settings
	sleep     retry.Sleeper
	now       func() time.Time
	log       *logger.Logger
}

// NewService constructs the reconciler.
func NewService(
	leads repository.LeadStore,
	logs repository.CallLogStore,
	provider telephony.Provider,
	publisher queue.Publisher,
	settings Settings,
	log *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	if settings.CountryCode == "" {
		settings.CountryCode = common.DefaultCountryCode
	}
	if settings.ReadPolicy.MaxAttempts <= 0 {
		settings.ReadPolicy = retry.Policy{MaxAttempts: 4, BaseDelay: 5 * time.Second, Multiplier: 1}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		leads:     leads,
		logs:      logs,
		provider:  provider,
		publisher: publisher,
		settings:  settings,
		sleep:     retry.Sleep,
		now:       time.Now,
		log:       log,
	}
}

// WithSleeper replaces throttling and rate-limit waits.
func (s *Service) WithSleeper(sl retry.Sleeper) *Service {
	s.sleep = sl
	return s
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordDispatch appends the call log for a successful dispatch and moves the
// lead to Llamando. A second call with the same provider id does not append again.
func (s *Service) RecordDispatch(ctx context.Context, lead domain.Lead, providerCallID string, attempts int) error {
	phone := common.NormalizePhone(lead.Phone, s.settings.CountryCode)
	if err := s.appendOnce(ctx, &domain.CallLog{
		ProviderCallID: providerCallID,
		LeadName:       lead.Name,
		Phone:          phone,
		CallTime:       s.now().UTC(),
		EndedReason:    domain.EndedReasonInitiated,
	}); err != nil {
		return err
	}

	if lead.ID != "" {
		update := domain.LeadUpdate{ID: lead.ID, Status: domain.LeadStatusCalling, ClearSchedule: true}
		if err := s.leads.UpdateLeads(ctx, []domain.LeadUpdate{update}); err != nil {
			return fmt.Errorf("reconcile: mark lead calling: %w", err)
		}
		lead.Status = domain.LeadStatusCalling
	}

	event := domain.NewCallEvent(domain.CallEventDispatched, lead, s.now())
	event.Phone = phone
	event.ProviderCallID = providerCallID
	event.Attempt = attempts
	s.publish(ctx, event)
	return nil
}

// RecordDispatchFailure publishes a dispatch_failed event. The lead is left
// as it was so the next run picks it up again.
func (s *Service) RecordDispatchFailure(ctx context.Context, lead domain.Lead, attempts int, cause error) error {
	event := domain.NewCallEvent(domain.CallEventDispatchFailed, lead, s.now())
	event.Attempt = attempts
	if cause != nil {
		event.Detail = cause.Error()
	}
	s.publish(ctx, event)
	return nil
}

// RecordSkip publishes a skipped event for a lead that was not dialed.
func (s *Service) RecordSkip(ctx context.Context, lead domain.Lead, reason string) {
	event := domain.NewCallEvent(domain.CallEventSkipped, lead, s.now())
	event.Detail = reason
	s.publish(ctx, event)
}

// RecordRecall logs a follow-up call against the call it repeats.
func (s *Service) RecordRecall(ctx context.Context, original telephony.Call, providerCallID, note string) error {
	if err := s.appendOnce(ctx, &domain.CallLog{
		ProviderCallID: providerCallID,
		LeadName:       original.CustomerName,
		Phone:          original.CustomerNumber,
		CallTime:       s.now().UTC(),
		EndedReason:    "Retry of " + original.ID,
		Notes:          note,
	}); err != nil {
		return err
	}
	event := domain.NewCallEvent(domain.CallEventDispatched, domain.Lead{Name: original.CustomerName, Phone: original.CustomerNumber}, s.now())
	event.ProviderCallID = providerCallID
	event.Detail = "recall of " + original.ID
	s.publish(ctx, event)
	return nil
}

func (s *Service) appendOnce(ctx context.Context, log *domain.CallLog) error {
	existing, err := s.logs.FindByProviderCallID(ctx, log.ProviderCallID)
	switch {
	case err == nil && existing != nil:
		return nil
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		return fmt.Errorf("reconcile: lookup call log: %w", err)
	}
	if err := s.logs.AppendCallLog(ctx, log); err != nil {
		return fmt.Errorf("reconcile: append call log: %w", err)
	}
	return nil
}

// Options control a reconciliation or enrichment pass.
type Options struct {
	DryRun bool
	Limit  int
}

// Report summarises a reconciliation pass.
type Report struct {
	Checked   int
	Completed int
	Retrying  int
	Failed    int
	Skipped   int
	Errors    int
	Decisions []Decision
}

// Reconcile checks every in-flight lead against the provider and applies the
// resulting transition. Observation failures skip the lead; a later pass
// retries it.
func (s *Service) Reconcile(ctx context.Context, opts Options) (Report, error) {
	tracer := otel.Tracer("dialer.reconcile")
	ctx, span := tracer.Start(ctx, "reconcile.pass", trace.WithAttributes(attribute.Bool("dry_run", opts.DryRun)))
	defer span.End()

	leads, err := s.leads.ListLeads(ctx, repository.LeadFilter{
		Statuses: []domain.LeadStatus{domain.LeadStatusCalling, domain.LeadStatusInProgress},
		Limit:    opts.Limit,
	})
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: list in-flight leads: %w", err)
	}
	span.SetAttributes(attribute.Int("leads.count", len(leads)))

	var report Report
	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		log := s.log.WithContext(ctx).With(zap.String("lead", lead.Name), zap.String("lead_id", lead.ID))

		call, err := s.observe(ctx, lead)
		if err != nil {
			report.Errors++
			log.Warn("cannot observe call outcome, skipping", zap.Error(err))
			continue
		}

		d := Decide(lead, call, s.now(), s.settings.Rules)
		report.Decisions = append(report.Decisions, d)
		update, ok := d.Update()
		if !ok {
			report.Skipped++
			log.Debug("lead skipped", zap.String("reason", d.Reason))
			continue
		}

		if !opts.DryRun {
			if err := s.leads.UpdateLeads(ctx, []domain.LeadUpdate{update}); err != nil {
				report.Errors++
				log.Error("apply reconciliation", zap.Error(err))
				continue
			}
			lead.Status = update.Status
			event := domain.NewCallEvent(domain.CallEventReconciled, lead, s.now())
			event.ProviderCallID = d.CallID
			event.Attempt = d.Attempts
			event.Detail = d.EndedReason
			s.publish(ctx, event)
		}

		switch d.Action {
		case ActionComplete:
			report.Completed++
		case ActionRetry:
			report.Retrying++
		case ActionFail:
			report.Failed++
		}
		log.Info("lead reconciled",
			zap.String("action", string(d.Action)),
			zap.String("call_id", d.CallID),
			zap.String("ended_reason", d.EndedReason),
			zap.Int("attempts", d.Attempts),
			zap.Bool("dry_run", opts.DryRun))
	}

	span.SetAttributes(
		attribute.Int("reconcile.completed", report.Completed),
		attribute.Int("reconcile.retrying", report.Retrying),
		attribute.Int("reconcile.failed", report.Failed),
	)
	return report, nil
}

// observe finds the lead's latest call log and fetches the provider's view of
// that call. A lead with no call log yields a nil call.
func (s *Service) observe(ctx context.Context, lead domain.Lead) (*telephony.Call, error) {
	phone := common.NormalizePhone(lead.Phone, s.settings.CountryCode)
	if phone == "" {
		return nil, fmt.Errorf("reconcile: %q: %w", lead.Phone, apperrors.ErrInvalidPhone)
	}
	entry, err := s.logs.LatestForPhone(ctx, phone)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile: latest call log: %w", err)
	}
	if entry.ProviderCallID == "" {
		return nil, nil
	}
	return s.getCall(ctx, entry.ProviderCallID)
}

func (s *Service) getCall(ctx context.Context, id string) (*telephony.Call, error) {
	var call *telephony.Call
	_, err := retry.Do(ctx, s.settings.ReadPolicy, s.sleep, rateLimited, func(ctx context.Context, _ int) error {
		c, err := s.provider.GetCall(ctx, id)
		if err != nil {
			return err
		}
		call = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: get call %s: %w", id, err)
	}
	return call, nil
}

func rateLimited(err error) bool {
	var apiErr *telephony.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// EnrichReport summarises an enrichment pass.
type EnrichReport struct {
	Pending  int
	Enriched int
	Skipped  int
	Errors   int
	Updates  []domain.CallLogUpdate
}

// Enrich copies the provider's final outcome onto call logs still marked
// "Call Initiated".
func (s *Service) Enrich(ctx context.Context, opts Options) (EnrichReport, error) {
	tracer := otel.Tracer("dialer.reconcile")
	ctx, span := tracer.Start(ctx, "reconcile.enrich", trace.WithAttributes(attribute.Bool("dry_run", opts.DryRun)))
	defer span.End()

	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	pending, err := s.logs.ListCallLogs(ctx, repository.CallLogFilter{EndedReason: domain.EndedReasonInitiated, Limit: limit})
	if err != nil {
		return EnrichReport{}, fmt.Errorf("reconcile: list pending call logs: %w", err)
	}

	report := EnrichReport{Pending: len(pending)}
	for i, entry := range pending {
		if entry.ProviderCallID == "" {
			report.Skipped++
			continue
		}
		if i > 0 && s.settings.EnrichThrottle > 0 {
			if err := s.sleep(ctx, s.settings.EnrichThrottle); err != nil {
				return report, err
			}
		}

		log := s.log.WithContext(ctx).With(zap.String("call_id", entry.ProviderCallID), zap.String("lead", entry.LeadName))
		call, err := s.getCall(ctx, entry.ProviderCallID)
		if err != nil {
			report.Errors++
			log.Warn("enrich: provider lookup failed", zap.Error(err))
			continue
		}
		if !call.Ended() {
			report.Skipped++
			log.Debug("enrich: call not ended", zap.String("status", call.Status))
			continue
		}

		update := EnrichmentFor(entry.ID, *call, s.settings.TranscriptLimit)
		report.Updates = append(report.Updates, update)
		if !opts.DryRun {
			if err := s.logs.UpdateCallLogs(ctx, []domain.CallLogUpdate{update}); err != nil {
				report.Errors++
				log.Error("enrich: update call log", zap.Error(err))
				continue
			}
			event := domain.NewCallEvent(domain.CallEventEnriched, domain.Lead{Name: entry.LeadName, Phone: entry.Phone}, s.now())
			event.ProviderCallID = entry.ProviderCallID
			event.Detail = update.Evaluation
			s.publish(ctx, event)
		}
		report.Enriched++
		log.Info("call log enriched",
			zap.String("evaluation", update.Evaluation),
			zap.String("ended_reason", update.EndedReason),
			zap.Int("duration_seconds", update.DurationSeconds))
	}
	return report, nil
}

// EnrichmentFor builds the call-log patch for an ended call.
func EnrichmentFor(logID string, call telephony.Call, transcriptLimit int) domain.CallLogUpdate {
	duration := call.DurationSeconds()
	return domain.CallLogUpdate{
		ID:              logID,
		EndedReason:     DescribeEndedReason(call.EndedReason),
		DurationSeconds: duration,
		Evaluation:      Evaluate(call.EndedReason, duration),
		Transcript:      Truncate(call.Transcript, transcriptLimit),
		RecordingURL:    call.RecordingURL,
	}
}

// Run repeats Enrich and Reconcile every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration, opts Options) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Enrich(ctx, opts); err != nil && ctx.Err() == nil {
			s.log.Error("enrich pass failed", zap.Error(err))
		}
		if report, err := s.Reconcile(ctx, opts); err != nil && ctx.Err() == nil {
			s.log.Error("reconcile pass failed", zap.Error(err))
		} else if err == nil {
			s.log.Info("reconcile pass finished",
				zap.Int("checked", report.Checked),
				zap.Int("completed", report.Completed),
				zap.Int("retrying", report.Retrying),
				zap.Int("failed", report.Failed),
				zap.Int("skipped", report.Skipped),
				zap.Int("errors", report.Errors))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) publish(ctx context.Context, event domain.CallEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithContext(ctx).Warn("publish call event",
			zap.String("type", string(event.Type)),
			zap.String("lead", event.LeadName),
			zap.Error(err))
	}
}
