package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/internal/service/retry"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// MessageReader is the part of *kafka.Reader the worker uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Worker copies call events from the events topic into the journal.
type Worker struct {
	reader  MessageReader
	journal repository.EventJournal
	backoff retry.Policy
	sleep   retry.Sleeper
	log     *logger.Logger
}

// New creates a journal worker.
func New(reader MessageReader, journal repository.EventJournal, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		reader:  reader,
		journal: journal,
		backoff: retry.Policy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute},
		sleep:   retry.Sleep,
		log:     log,
	}
}

// WithSleeper replaces the wait between append attempts.
func (w *Worker) WithSleeper(sl retry.Sleeper) *Worker {
	w.sleep = sl
	return w
}

// Run processes events until the context is cancelled. Offsets are committed
// in order: a message whose journal write fails is retried with backoff and
// nothing after it is fetched until it is written.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("journal worker: fetch", zap.Error(err))
			continue
		}
		if err := w.appendUntilWritten(ctx, msg); err != nil {
			return err
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			w.log.Error("journal worker: commit", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func (w *Worker) appendUntilWritten(ctx context.Context, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := w.handle(ctx, msg)
		if err == nil {
			return nil
		}
		delay := w.backoff.Delay(attempt)
		w.log.Warn("journal worker: append failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if serr := w.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	var event queue.EventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.log.Error("journal worker: unmarshal", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}

	tracer := otel.Tracer("dialer.journal")
	ctx, span := tracer.Start(ctx, "journal.append", trace.WithAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("lead.id", event.LeadID),
		attribute.String("call.id", event.ProviderCallID),
	))
	defer span.End()

	if err := w.journal.Append(ctx, event.ToDomain()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("journal worker: append %s for lead %s: %w", event.Type, event.LeadID, err)
	}
	return nil
}
