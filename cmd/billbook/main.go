package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"billbook/internal/cli"
	"billbook/internal/core"
	apphttp "billbook/internal/http"
	"billbook/internal/log"
	"billbook/internal/receipts"
	"billbook/internal/services"
	"billbook/internal/store"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	be, bcfg := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	opts := []store.Option{
		store.WithLogger(logger),
		store.WithBaseCurrency(core.Currency(cfg.BaseCurrency)),
	}
	if be.Publisher != nil {
		opts = append(opts, store.WithPublisher(be.Publisher))
	}
	ledger, err := store.Open(ctx, be.Persistence, opts...)
	if err != nil {
		logger.Error("Failed to load ledger", log.FieldError, err, "backend", bcfg.Type)
		os.Exit(1)
	}

	serverOpts := []apphttp.Option{
		apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP)),
		apphttp.WithPinger(be.Persistence),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.OCRURL != "" {
		serverOpts = append(serverOpts, apphttp.WithExtractor(receipts.NewClient(cfg.OCRURL, cfg.OCRTimeout, logger)))
		logger.Info("Receipt extraction enabled", "url", cfg.OCRURL)
	}
	srv := apphttp.NewServer(":"+cfg.Port, ledger, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting billbook server", "port", cfg.Port, "backend", bcfg.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		runRecurring(gctx, services.NewRecurringProcessor(ledger, logger), cfg.RecurringProcessorInterval, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// runRecurring processes due templates at startup and then on every tick.
// It runs in the server process because the store is the only writer.
func runRecurring(ctx context.Context, p *services.RecurringProcessor, interval time.Duration, logger *log.Logger) {
	process := func(now time.Time) {
		count, err := p.ProcessDueExpenses(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", log.FieldError, err)
			return
		}
		logger.Info("Recurring processing complete",
			"expenses_created", count,
			"next_check", now.Add(interval).Format("15:04:05"))
	}

	process(time.Now())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			process(now)
		}
	}
}
