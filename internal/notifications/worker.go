package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/faults"
	"github.com/bissquit/fieldservice-sla/internal/pkg/ctxlog"
	"github.com/bissquit/fieldservice-sla/internal/sla"
)

// Checker runs one SLA check over the active faults.
type Checker interface {
	CheckSLA(ctx context.Context) (*faults.CheckResult, error)
}

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	Interval time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{Interval: time.Minute}
}

// Worker periodically checks SLAs and delivers new warnings and breaches.
type Worker struct {
	config     WorkerConfig
	checker    Checker
	renderer   *Renderer
	dispatcher *Dispatcher
	suppressor *Suppressor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a scan worker. A nil dispatcher only logs events.
func NewWorker(config WorkerConfig, checker Checker, renderer *Renderer, dispatcher *Dispatcher, suppressor *Suppressor) *Worker {
	if suppressor == nil {
		suppressor = NewSuppressor(0)
	}
	return &Worker{
		config:     config,
		checker:    checker,
		renderer:   renderer,
		dispatcher: dispatcher,
		suppressor: suppressor,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the scan loop. The first scan runs immediately.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting sla scan worker",
		"interval", w.config.Interval,
		"delivery", w.dispatcher != nil,
	)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the scan loop and waits for the current scan to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	slog.Info("sla scan worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("sla scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one scan and delivers the events that are not
// suppressed. It returns the number of events delivered. Events whose
// delivery failed are not marked and come back on the next scan.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ctx = ctxlog.With(ctx, "component", "sla_scan")
	logger := ctxlog.FromContext(ctx)

	result, err := w.checker.CheckSLA(ctx)
	if err != nil {
		return 0, fmt.Errorf("check sla: %w", err)
	}

	events := make([]sla.Event, 0, len(result.Breaches)+len(result.Warnings))
	events = append(events, result.Breaches...)
	events = append(events, result.Warnings...)

	delivered := 0
	var errs []error
	for _, ev := range events {
		key := ev.Key()
		if w.suppressor.Suppressed(key, result.EvaluatedAt) {
			notificationsSuppressed.Inc()
			continue
		}

		if err := w.deliver(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", key, err))
			continue
		}
		w.suppressor.Mark(key, result.EvaluatedAt)
		delivered++
	}

	remembered := w.suppressor.Prune(result.EvaluatedAt)

	logger.Debug("sla scan completed",
		"active_faults", result.ActiveFaults,
		"warnings", len(result.Warnings),
		"breaches", len(result.Breaches),
		"delivered", delivered,
		"suppressed_keys", remembered,
	)

	return delivered, errors.Join(errs...)
}

func (w *Worker) deliver(ctx context.Context, ev sla.Event) error {
	subject, body, err := w.renderer.Render(ev)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	if w.dispatcher == nil {
		logger.Warn("sla event",
			"event_type", ev.Kind,
			"fault_id", ev.FaultID,
			"milestone", ev.Milestone,
			"subject", subject,
		)
		return nil
	}

	if err := w.dispatcher.Dispatch(ctx, Notification{Subject: subject, Body: body, Event: ev}); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	logger.Info("sla event delivered",
		"event_type", ev.Kind,
		"fault_id", ev.FaultID,
		"milestone", ev.Milestone,
	)
	return nil
}
