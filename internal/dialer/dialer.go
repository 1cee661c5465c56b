package dialer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	callsvc "github.com/acme/outbound-dialer/internal/service/call"
	"github.com/acme/outbound-dialer/internal/service/common"
	"github.com/acme/outbound-dialer/internal/service/concurrency"
	"github.com/acme/outbound-dialer/internal/service/retry"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
	"github.com/acme/outbound-dialer/pkg/logger"
)

const lockName = "dialer"

// Admitter blocks until a provider slot frees up or gives up.
type Admitter interface {
	WaitForSlot(ctx context.Context) (concurrency.SlotResult, error)
}

// Dispatcher places one call.
type Dispatcher interface {
	Dispatch(ctx context.Context, lead domain.Lead, opts callsvc.Options) callsvc.DispatchResult
}

// Recorder persists what happened to each lead.
type Recorder interface {
	RecordDispatch(ctx context.Context, lead domain.Lead, providerCallID string, attempts int) error
	RecordDispatchFailure(ctx context.Context, lead domain.Lead, attempts int, cause error) error
	RecordSkip(ctx context.Context, lead domain.Lead, reason string)
}

// Locker serialises runs across processes.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, bool, error)
}

// Settings configure eligibility and pacing.
type Settings struct {
	Statuses      []domain.LeadStatus
	ExcludedNames []string
	CallSpacing   time.Duration
	CountryCode   string
	Hours         *Window
}

// Options tune a single run.
type Options struct {
	DryRun      bool
	AssistantID string
	Limit       int
}

// Summary counts what a run did with each eligible lead.
type Summary struct {
	Eligible     int
	Dispatched   int
	Failed       int
	Skipped      int
	OutsideHours bool
}

// Dialer walks eligible leads one at a time, admitting each through the gate.
type Dialer struct {
	leads    repository.LeadStore
	gate     Admitter
	calls    Dispatcher
	recorder Recorder
	lock     Locker
	settings Settings
	sleep    retry.Sleeper
	now      func() time.Time
	log      *logger.Logger
}

// New constructs a dialer. lock may be nil.
func New(leads repository.LeadStore, gate Admitter, calls Dispatcher, recorder Recorder, lock Locker, settings Settings, log *logger.Logger) *Dialer {
	if len(settings.Statuses) == 0 {
		settings.Statuses = []domain.LeadStatus{domain.LeadStatusScheduled, domain.LeadStatusRetry}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dialer{
		leads:    leads,
		gate:     gate,
		calls:    calls,
		recorder: recorder,
		lock:     lock,
		settings: settings,
		sleep:    retry.Sleep,
		now:      time.Now,
		log:      log,
	}
}

// WithSleeper replaces the pause between calls.
func (d *Dialer) WithSleeper(s retry.Sleeper) *Dialer {
	d.sleep = s
	return d
}

// WithClock replaces the time source.
func (d *Dialer) WithClock(now func() time.Time) *Dialer {
	d.now = now
	return d
}

// Eligible lists the leads a run would dial now.
func (d *Dialer) Eligible(ctx context.Context, limit int) ([]domain.Lead, error) {
	leads, err := d.leads.ListLeads(ctx, repository.LeadFilter{Statuses: d.settings.Statuses})
	if err != nil {
		return nil, fmt.Errorf("dialer: list leads: %w", err)
	}
	now := d.now()
	out := make([]domain.Lead, 0, len(leads))
	for _, lead := range leads {
		if !d.eligible(lead, now) {
			continue
		}
		out = append(out, lead)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (d *Dialer) eligible(lead domain.Lead, now time.Time) bool {
	if !hasStatus(lead.Status, d.settings.Statuses) {
		return false
	}
	if !lead.Due(now) {
		return false
	}
	if common.NormalizePhone(lead.Phone, d.settings.CountryCode) == "" {
		return false
	}
	name := strings.TrimSpace(lead.Name)
	for _, excluded := range d.settings.ExcludedNames {
		if strings.EqualFold(name, strings.TrimSpace(excluded)) {
			return false
		}
	}
	return true
}

func hasStatus(status domain.LeadStatus, statuses []domain.LeadStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Run dials every eligible lead sequentially. A lead that cannot get a slot
// within the gate's poll budget is skipped, never forced through.
func (d *Dialer) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary

	if d.lock != nil {
		release, ok, err := d.lock.Acquire(ctx, lockName)
		if err != nil {
			return summary, fmt.Errorf("dialer: %w", err)
		}
		if !ok {
			return summary, fmt.Errorf("dialer: another run holds the lock: %w", apperrors.ErrConflict)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				d.log.Warn("dialer: release run lock", zap.Error(err))
			}
		}()
	}

	tracer := otel.Tracer("dialer.run")
	ctx, span := tracer.Start(ctx, "dialer.run", trace.WithAttributes(attribute.Bool("dry_run", opts.DryRun)))
	defer span.End()
	log := d.log.WithContext(ctx)

	if !d.settings.Hours.Contains(d.now()) {
		summary.OutsideHours = true
		log.Info("dialer: outside calling hours")
		return summary, nil
	}

	leads, err := d.Eligible(ctx, opts.Limit)
	if err != nil {
		span.RecordError(err)
		return summary, err
	}
	summary.Eligible = len(leads)
	span.SetAttributes(attribute.Int("leads.eligible", len(leads)))
	log.Info("dialer: eligible leads", zap.Int("count", len(leads)))

	if opts.DryRun {
		for _, lead := range leads {
			log.Info("dialer: would call",
				zap.String("lead", lead.Name),
				zap.String("phone", lead.Phone),
				zap.String("status", string(lead.Status)))
		}
		return summary, nil
	}

	for i, lead := range leads {
		if i > 0 {
			if !d.settings.Hours.Contains(d.now()) {
				summary.OutsideHours = true
				log.Info("dialer: calling hours closed mid-run", zap.Int("remaining", len(leads)-i))
				break
			}
			if err := d.sleep(ctx, d.settings.CallSpacing); err != nil {
				return summary, err
			}
		}

		slot, err := d.gate.WaitForSlot(ctx)
		if err != nil {
			return summary, err
		}
		if !slot.Available {
			summary.Skipped++
			log.Warn("dialer: no slot, skipping lead",
				zap.String("lead", lead.Name),
				zap.String("phone", lead.Phone),
				zap.Int("active", slot.Active),
				zap.Int("polls", slot.Polls))
			d.recorder.RecordSkip(ctx, lead, "no concurrency slot")
			continue
		}

		res := d.calls.Dispatch(ctx, lead, callsvc.Options{AssistantID: opts.AssistantID})
		if !res.Success {
			summary.Failed++
			log.Error("dialer: dispatch failed",
				zap.String("lead", lead.Name),
				zap.String("phone", res.Phone),
				zap.Int("attempt", res.Attempts),
				zap.String("class", res.Class.String()),
				zap.Error(res.Err))
			if err := d.recorder.RecordDispatchFailure(ctx, lead, res.Attempts, res.Err); err != nil {
				log.Warn("dialer: record failure", zap.String("lead", lead.Name), zap.Error(err))
			}
			continue
		}

		summary.Dispatched++
		log.Info("dialer: call dispatched",
			zap.String("lead", lead.Name),
			zap.String("phone", res.Phone),
			zap.String("call_id", res.CallID),
			zap.Int("attempt", res.Attempts))
		if err := d.recorder.RecordDispatch(ctx, lead, res.CallID, res.Attempts); err != nil {
			log.Error("dialer: record dispatch", zap.String("lead", lead.Name), zap.String("call_id", res.CallID), zap.Error(err))
		}
	}

	span.SetAttributes(
		attribute.Int("leads.dispatched", summary.Dispatched),
		attribute.Int("leads.failed", summary.Failed),
		attribute.Int("leads.skipped", summary.Skipped))
	return summary, nil
}
