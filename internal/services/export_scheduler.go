package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"billbook/internal/log"
)

// Exporter is the periodic side of the export worker.
type Exporter interface {
	ExportPending(ctx context.Context) (int, error)
	RefreshSummary(ctx context.Context, year int) error
}

type ExportSchedulerConfig struct {
	// Interval between full passes (default: 5m)
	Interval time.Duration

	// Now decides which year's summary is refreshed (default: time.Now)
	Now func() time.Time
}

func DefaultExportSchedulerConfig() ExportSchedulerConfig {
	return ExportSchedulerConfig{Interval: 5 * time.Minute, Now: time.Now}
}

// ExportScheduler re-runs the pending export and the summary refresh on a
// ticker. It backs up the event-driven path when messages are lost.
type ExportScheduler struct {
	exporter Exporter
	config   ExportSchedulerConfig
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportScheduler(exporter Exporter, config ExportSchedulerConfig, logger *log.Logger) *ExportScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultExportSchedulerConfig().Interval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportScheduler{exporter: exporter, config: config, logger: logger.WithComponent(log.ComponentWorker)}
}

// Run blocks until ctx is cancelled or Stop is called. It runs one pass
// immediately.
func (s *ExportScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("export scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	s.logger.InfoContext(ctx, "Export scheduler started", "interval", s.config.Interval.String())

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop ends Run and waits for the current pass to finish.
func (s *ExportScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
		s.logger.InfoContext(ctx, "Export scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Export scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *ExportScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce performs one export pass. Errors are logged; the next tick retries.
func (s *ExportScheduler) RunOnce(ctx context.Context) {
	if _, err := s.exporter.ExportPending(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Pending export failed", log.FieldError, err)
	}
	year := s.config.Now().Year()
	if err := s.exporter.RefreshSummary(ctx, year); err != nil {
		s.logger.ErrorContext(ctx, "Summary refresh failed", "year", year, log.FieldError, err)
	}
}
