package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/service/reconcile"
	"github.com/acme/outbound-dialer/internal/telemetry"
)

type options struct {
	Config     string        `short:"c" long:"config" env:"CONFIG_FILE" default:"configs/config.yaml" description:"path to configuration file"`
	DryRun     bool          `long:"dry-run" description:"report decisions without writing them"`
	Limit      int           `long:"limit" description:"maximum leads or call logs per pass"`
	Interval   time.Duration `long:"interval" description:"repeat every interval until interrupted; 0 runs once"`
	SkipEnrich bool          `long:"skip-enrich" description:"do not backfill call logs still marked Call Initiated"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	container, err := app.Build(ctx, opts.Config)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "reconciler")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	services := container.Services()
	release, ok, err := services.Lock.Acquire(ctx, "reconciler")
	if err != nil {
		log.Fatalf("failed to take run lock: %v", err)
	}
	if !ok {
		log.Fatalf("another reconciler is running")
	}
	defer func() { _ = release(context.Background()) }()

	svc := services.Reconcile
	runOpts := reconcile.Options{DryRun: opts.DryRun, Limit: opts.Limit}

	interval := opts.Interval
	if interval <= 0 {
		interval = container.Config.Reconcile.Interval
	}
	if interval > 0 {
		if err := svc.Run(ctx, interval, runOpts); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("reconciler terminated: %v", err)
		}
		return
	}

	if !opts.SkipEnrich {
		enriched, err := svc.Enrich(ctx, runOpts)
		if err != nil {
			log.Fatalf("enrich failed: %v", err)
		}
		container.Logger.Info("enrich pass finished",
			zap.Int("pending", enriched.Pending),
			zap.Int("enriched", enriched.Enriched),
			zap.Int("skipped", enriched.Skipped),
			zap.Int("errors", enriched.Errors))
	}

	report, err := svc.Reconcile(ctx, runOpts)
	if err != nil {
		log.Fatalf("reconcile failed: %v", err)
	}
	for _, d := range report.Decisions {
		container.Logger.Info("decision",
			zap.String("lead", d.Lead.Name),
			zap.String("phone", d.Lead.Phone),
			zap.String("call_id", d.CallID),
			zap.String("action", string(d.Action)),
			zap.Int("attempt", d.Attempts),
			zap.String("ended_reason", d.EndedReason))
	}
	container.Logger.Info("reconcile pass finished",
		zap.Int("checked", report.Checked),
		zap.Int("completed", report.Completed),
		zap.Int("retrying", report.Retrying),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Bool("dry_run", opts.DryRun))
}
