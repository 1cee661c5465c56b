package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/dialer"
	"github.com/acme/outbound-dialer/internal/telemetry"
)

type options struct {
	Config    string `short:"c" long:"config" env:"CONFIG_FILE" default:"configs/config.yaml" description:"path to configuration file"`
	DryRun    bool   `long:"dry-run" description:"list eligible leads without dialing"`
	Assistant string `long:"assistant" description:"assistant name or id; defaults to provider.default_assistant"`
	Limit     int    `long:"limit" description:"maximum number of leads to dial"`
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

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "dialer")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	assistant := ""
	if opts.Assistant != "" {
		assistant = container.Config.Provider.AssistantID(opts.Assistant)
	}

	summary, err := container.Dialer().Run(ctx, dialer.Options{
		DryRun:      opts.DryRun,
		AssistantID: assistant,
		Limit:       opts.Limit,
	})
	container.Logger.Info("dialer run finished",
		zap.Int("eligible", summary.Eligible),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("outside_hours", summary.OutsideHours),
		zap.Bool("dry_run", opts.DryRun))
	if err != nil {
		log.Fatalf("dialer terminated: %v", err)
	}
}
