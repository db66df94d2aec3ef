package queue

import "errors"

// ErrQueueFull is returned by Submit when the queued-message cap is reached.
// Safe to retry after a delay.
var ErrQueueFull = errors.New("queue is full")

// ErrInvalidInput is returned for an empty prompt, an oversize thread id or
// an unknown priority.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound is returned when a message id is unknown.
var ErrNotFound = errors.New("message not found")

// ErrThreadNotFound is returned when a thread id is unknown.
var ErrThreadNotFound = errors.New("thread not found")

// ErrInvalidTransition is returned when a state change is not an allowed
// edge of the lifecycle graph.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrNotCancellable is returned when cancelling a message that is no longer
// queued. Cancelling an in-flight message is deliberately unsupported.
var ErrNotCancellable = errors.New("message is not cancellable")
