package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"billbook/internal/amqp"
	"billbook/internal/backend"
	"billbook/internal/cli"
	"billbook/internal/log"
	"billbook/internal/services"
	"billbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger.Info("Starting billbook-worker")

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	be, bcfg := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	writer, err := backend.NewFactory(logger).CreateSheetWriter(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize sheet writer", log.FieldError, err)
		os.Exit(1)
	}
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled, no GOOGLE_SPREADSHEET_ID provided")
	}

	exporter := worker.NewExportWorker(be.Persistence, writer, writer, logger)
	scheduler := services.NewExportScheduler(exporter, services.ExportSchedulerConfig{Interval: cfg.ExportInterval}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if consumer, ok := be.Publisher.(*amqp.Client); ok {
		g.Go(func() error {
			err := consumer.Consume(gctx, exporter.HandleChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on periodic export only", "interval", cfg.ExportInterval.String())
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
