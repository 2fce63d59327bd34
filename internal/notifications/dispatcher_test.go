package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/bissquit/fieldservice-sla/internal/sla"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender returns the scripted errors in order, then succeeds.
type fakeSender struct {
	name string

	mu   sync.Mutex
	errs []error
	sent []Notification
	// calls counts attempts, including failed ones.
	calls int
}

func (s *fakeSender) Name() string { return s.name }

func (s *fakeSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSender) delivered() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.sent...)
}

func newTestDispatcher(t *testing.T, senders ...Sender) (*Dispatcher, *[]time.Duration) {
	t.Helper()
	d, err := NewDispatcher(DefaultRetryPolicy(), senders...)
	require.NoError(t, err)

	var waits []time.Duration
	d.sleep = func(_ context.Context, wait time.Duration) error {
		waits = append(waits, wait)
		return nil
	}
	return d, &waits
}

func testNotification() Notification {
	return Notification{
		Subject: "subject",
		Body:    "body",
		Event: sla.Event{
			Kind:      sla.EventKindBreach,
			FaultID:   "f-1",
			Severity:  domain.SeverityCritical,
			Milestone: domain.MilestoneOnsite,
		},
	}
}

func TestNewDispatcher_NoSenders(t *testing.T) {
	_, err := NewDispatcher(DefaultRetryPolicy())
	assert.ErrorIs(t, err, ErrNoSenders)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{100, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Backoff(tt.attempt))
		})
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt", func(t *testing.T) {
		s := &fakeSender{name: "a"}
		d, waits := newTestDispatcher(t, s)

		require.NoError(t, d.Dispatch(ctx, testNotification()))
		assert.Len(t, s.delivered(), 1)
		assert.Empty(t, *waits)
	})

	t.Run("retryable error is retried with backoff", func(t *testing.T) {
		s := &fakeSender{name: "a", errs: []error{
			&RetryableError{Code: 503, Message: "unavailable"},
			&RetryableError{Code: 503, Message: "unavailable"},
		}}
		d, waits := newTestDispatcher(t, s)

		require.NoError(t, d.Dispatch(ctx, testNotification()))
		assert.Equal(t, 3, s.calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		retryable := &RetryableError{Code: 500, Message: "boom"}
		s := &fakeSender{name: "a", errs: []error{retryable, retryable, retryable, retryable}}
		d, _ := newTestDispatcher(t, s)

		err := d.Dispatch(ctx, testNotification())
		require.Error(t, err)
		assert.Equal(t, 3, s.calls)

		var target *RetryableError
		assert.ErrorAs(t, err, &target)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		s := &fakeSender{name: "a", errs: []error{&PermanentError{Code: 404, Message: "gone"}}}
		d, waits := newTestDispatcher(t, s)

		err := d.Dispatch(ctx, testNotification())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a: ")
		assert.Equal(t, 1, s.calls)
		assert.Empty(t, *waits)
	})

	t.Run("one failing sender does not block others", func(t *testing.T) {
		bad := &fakeSender{name: "bad", errs: []error{&PermanentError{Message: "no"}}}
		good := &fakeSender{name: "good"}
		d, _ := newTestDispatcher(t, bad, good)

		err := d.Dispatch(ctx, testNotification())
		require.Error(t, err)
		assert.Len(t, good.delivered(), 1)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		s := &fakeSender{name: "a", errs: []error{&RetryableError{Message: "slow"}}}
		d, err := NewDispatcher(DefaultRetryPolicy(), s)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err = d.Dispatch(cctx, testNotification())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, s.calls)
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"retryable", &RetryableError{Message: "x"}, true},
		{"permanent", &PermanentError{Message: "x"}, false},
		{"wrapped permanent", fmt.Errorf("send: %w", &PermanentError{Code: 400}), false},
		{"unknown error", errors.New("something"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}
