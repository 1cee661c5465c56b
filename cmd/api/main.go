package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/api"
	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/telemetry"
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

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "api")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	server := api.NewServer(container)
	container.Logger.Info("dashboard api listening",
		zap.Int("port", container.Config.HTTP.Port),
		zap.String("store", container.Config.Store.Driver),
		zap.String("provider", container.Config.Provider.Name))
	if err := server.Start(ctx); err != nil {
		container.Logger.Error("server terminated", zap.Error(err))
		container.Logger.Sync()
		os.Exit(1)
	}
}
