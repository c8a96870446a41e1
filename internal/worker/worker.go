// Package worker runs subscription renewals in the background.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
)

// Renewer settles subscriptions whose billing period has ended.
type Renewer interface {
	ProcessRenewals(ctx context.Context) (*domain.RenewalSummary, error)
}

// Worker calls a Renewer on a fixed interval until stopped.
type Worker struct {
	renewer Renewer
	config  Config
	logger  *slog.Logger

	// Synchronization
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(renewer Renewer, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		renewer: renewer,
		config:  config,
		logger:  logger.With("component", "renewal_worker"),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the renewal loop. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("Worker started", "interval", w.config.Interval)
}

// Stop signals the loop to stop and waits up to ShutdownTimeout for it to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, a renewal run may still be in progress")
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	// Cancel the in-flight run when Stop is called
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if w.config.RunOnStart {
		w.RunOnce(ctx)
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single renewal run and records its outcome.
func (w *Worker) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	start := time.Now()
	summary, err := w.renewer.ProcessRenewals(ctx)
	duration := time.Since(start)

	if err != nil {
		metrics.RenewalFailed()
		attrs := []any{"error", err, "duration_ms", duration.Milliseconds()}
		if summary != nil {
			attrs = append(attrs, "renewed", summary.Renewed, "failed", summary.Failed,
				"expired", summary.Expired, "skipped", summary.Skipped)
		}
		w.logger.Error("Renewal run failed", attrs...)
		return
	}

	metrics.RenewalCompleted(*summary, duration)
	if summary.Total() == 0 {
		w.logger.Debug("Renewal run found nothing due")
		return
	}
	w.logger.Info("Renewal run completed",
		"renewed", summary.Renewed,
		"failed", summary.Failed,
		"expired", summary.Expired,
		"skipped", summary.Skipped,
		"duration_ms", duration.Milliseconds(),
	)
}
