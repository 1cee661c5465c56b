package concurrency

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/service/retry"
	"github.com/acme/outbound-dialer/internal/telephony"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// CallLister is the slice of the provider the gate needs.
type CallLister interface {
	ListCalls(ctx context.Context, limit int) ([]telephony.Call, error)
}

// GateOptions bounds admission.
type GateOptions struct {
	MaxConcurrent int
	PollInterval  time.Duration
	MaxPolls      int
	ListLimit     int
}

// SlotResult reports the outcome of WaitForSlot.
type SlotResult struct {
	Available bool
	// Active is the last observed count, or -1 when the last poll failed.
	Active int
	Polls  int
}

// Gate admits a new call only while the provider reports fewer than
// MaxConcurrent active calls. A failed count never admits.
type Gate struct {
	calls CallLister
	opts  GateOptions
	sleep retry.Sleeper
	log   *logger.Logger
}

// NewGate constructs a concurrency gate.
func NewGate(calls CallLister, opts GateOptions, log *logger.Logger) *Gate {
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 1
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{calls: calls, opts: opts, sleep: retry.Sleep, log: log}
}

// WithSleeper replaces the wait between polls.
func (g *Gate) WithSleeper(s retry.Sleeper) *Gate {
	g.sleep = s
	return g
}

// Options returns the admission bounds in effect.
func (g *Gate) Options() GateOptions {
	return g.opts
}

// ActiveCount asks the provider how many calls currently occupy a slot.
func (g *Gate) ActiveCount(ctx context.Context) (int, error) {
	calls, err := g.calls.ListCalls(ctx, g.opts.ListLimit)
	if err != nil {
		return 0, fmt.Errorf("concurrency gate: list calls: %w", err)
	}
	return telephony.CountActive(calls), nil
}

// TryAcquire performs a single poll and reports whether a slot is free.
func (g *Gate) TryAcquire(ctx context.Context) (SlotResult, error) {
	active, err := g.ActiveCount(ctx)
	if err != nil {
		return SlotResult{Active: -1, Polls: 1}, err
	}
	return SlotResult{Available: active < g.opts.MaxConcurrent, Active: active, Polls: 1}, nil
}

// WaitForSlot polls until a slot is free or MaxPolls is exhausted. The only
// error it returns is a cancelled context; an exhausted wait is reported as
// Available=false.
func (g *Gate) WaitForSlot(ctx context.Context) (SlotResult, error) {
	tracer := otel.Tracer("dialer.gate")
	ctx, span := tracer.Start(ctx, "gate.wait", trace.WithAttributes(
		attribute.Int("gate.max_concurrent", g.opts.MaxConcurrent),
		attribute.Int("gate.max_polls", g.opts.MaxPolls),
	))
	defer span.End()

	result := SlotResult{Active: -1}
	for poll := 1; poll <= g.opts.MaxPolls; poll++ {
		result.Polls = poll
		active, err := g.ActiveCount(ctx)
		switch {
		case err != nil:
			result.Active = -1
			g.log.WithContext(ctx).Warn("active call count unavailable, treating as full",
				zap.Int("poll", poll), zap.Error(err))
		case active < g.opts.MaxConcurrent:
			result.Active = active
			result.Available = true
			span.SetAttributes(attribute.Int("gate.polls", poll), attribute.Int("gate.active", active))
			return result, nil
		default:
			result.Active = active
			g.log.WithContext(ctx).Info("at capacity, waiting",
				zap.Int("active", active),
				zap.Int("max", g.opts.MaxConcurrent),
				zap.Int("poll", poll),
				zap.Int("max_polls", g.opts.MaxPolls))
		}

		if poll == g.opts.MaxPolls {
			break
		}
		if err := g.sleep(ctx, g.opts.PollInterval); err != nil {
			return result, fmt.Errorf("concurrency gate: wait: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("gate.polls", result.Polls), attribute.Bool("gate.exhausted", true))
	return result, nil
}
