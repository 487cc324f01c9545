package queue

import "errors"

// ErrCapacityExceeded is returned by Enqueue when the target partition is at
// MaxQueueSize. Producers must treat it as backpressure and surface a
// retryable failure upstream rather than dropping the message.
var ErrCapacityExceeded = errors.New("queue: partition at capacity")

type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable marks a handler error as terminal: the worker pool will
// dead-letter the message instead of re-enqueueing it.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable.
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}
