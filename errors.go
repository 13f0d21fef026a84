package cothread

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when Spawn receives an argument
	// outside its valid range (a non-positive stack size, a nil body, a
	// negative ticket count, and so on).
	ErrInvalidArgument = errors.New("cothread: invalid argument")

	// ErrAllocationFailed is returned by Spawn once the Runtime has
	// registered as many threads as WithMaxThreads allows.
	ErrAllocationFailed = errors.New("cothread: allocation failed")

	// ErrUnknownThread is returned by Join, Detach and ChangeScheduler
	// when given a tid the pool never registered.
	ErrUnknownThread = errors.New("cothread: unknown thread id")

	// ErrJoinSelf is returned when a thread tries to join itself.
	ErrJoinSelf = errors.New("cothread: thread cannot join itself")

	// ErrAlreadyDetached is returned by Join and Detach on a thread that
	// was already detached.
	ErrAlreadyDetached = errors.New("cothread: thread already detached")

	// ErrNoScheduler is returned by Run when the scheduler it was given
	// has no thread ready to start.
	ErrNoScheduler = errors.New("cothread: no ready thread to start")

	// ErrNoCurrentThread is returned by operations that only make sense
	// called from within a running thread's own body (Join) when no
	// thread is currently running.
	ErrNoCurrentThread = errors.New("cothread: no thread is currently running")
)

// wrapError wraps cause with message, the same cause-chain pattern the
// teacher module uses throughout its own error handling.
func wrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
