package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/telemetry"
	"github.com/acme/outbound-dialer/internal/worker/journal"
)

type options struct {
	Config string `short:"c" long:"config" env:"CONFIG_FILE" default:"configs/config.yaml" description:"path to configuration file"`
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

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "journal")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	store := container.Stores().Journal
	if container.Kafka == nil || store == nil {
		log.Fatalf("journal worker needs kafka.brokers and scylla.hosts")
	}
	if err := container.EnsureJournal(ctx); err != nil {
		log.Fatalf("failed to prepare journal: %v", err)
	}

	reader := container.Kafka.EventsReader()
	if err := journal.New(reader, store, container.Logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("journal worker terminated: %v", err)
	}
}
