// Package notifications delivers SLA warnings and breaches found by the
// periodic scan to the configured senders.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/sla"
)

// Notification is a rendered SLA event ready for delivery.
type Notification struct {
	Subject string
	Body    string
	Event   sla.Event
}

// Sender delivers notifications over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// RetryPolicy controls redelivery of retryable failures.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
		if backoff > float64(p.MaxBackoff) {
			break
		}
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Dispatcher sends each notification to every sender.
type Dispatcher struct {
	senders []Sender
	retry   RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. At least one sender is required.
func NewDispatcher(retry RetryPolicy, senders ...Sender) (*Dispatcher, error) {
	if len(senders) == 0 {
		return nil, ErrNoSenders
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Dispatcher{
		senders: senders,
		retry:   retry,
		sleep:   sleepContext,
	}, nil
}

// Dispatch delivers n to all senders. A failing sender does not stop the
// others; their errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range d.senders {
		if err := d.deliver(ctx, s, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, s Sender, n Notification) error {
	start := time.Now()
	defer func() { recordNotificationDuration(s.Name(), time.Since(start)) }()

	var err error
	for attempt := 1; ; attempt++ {
		err = s.Send(ctx, n)
		if err == nil {
			recordNotificationSent(s.Name(), "success")
			return nil
		}

		if !IsRetryable(err) || attempt >= d.retry.MaxAttempts {
			break
		}

		wait := d.retry.Backoff(attempt)
		slog.Warn("send failed, retrying",
			"sender", s.Name(),
			"event_key", n.Event.Key(),
			"attempt", attempt,
			"max_attempts", d.retry.MaxAttempts,
			"backoff", wait,
			"error", err,
		)
		recordNotificationSent(s.Name(), "retry")

		if sleepErr := d.sleep(ctx, wait); sleepErr != nil {
			err = errors.Join(err, sleepErr)
			break
		}
	}

	recordNotificationSent(s.Name(), "failed")
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
