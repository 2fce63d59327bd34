package notifications

import (
	"errors"
	"fmt"
)

// ErrNoSenders is returned by NewDispatcher when no sender is configured.
var ErrNoSenders = errors.New("no notification senders configured")

// RetryableError marks a delivery failure that may succeed if tried again,
// such as a timeout or a 5xx answer.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("delivery error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("delivery error: %s", e.Message)
}

// IsRetryable returns true.
func (e *RetryableError) IsRetryable() bool { return true }

// PermanentError marks a delivery failure that will not succeed on retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("delivery error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("delivery error: %s", e.Message)
}

// IsRetryable returns false.
func (e *PermanentError) IsRetryable() bool { return false }

// IsRetryable reports whether err asks to be retried. Errors that do not
// say either way are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
