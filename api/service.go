// Package api
// Author: momentics <momentics@gmail.com>
//
// Job execution contracts for the net and logic domains.

package api

// Performer accepts jobs for serialized execution on a single goroutine.
type Performer interface {
	// Perform enqueues job. It blocks while the queue is at capacity and
	// fails with ErrServiceStopped once the consumer has exited.
	Perform(job func()) error
}

// Service is a Performer with an owned consumer goroutine.
type Service interface {
	Performer

	// Start launches the consumer goroutine.
	Start() error

	// Stop asks the consumer to drain and exit. It does not wait.
	Stop()

	// Done is closed once the consumer has exited.
	Done() <-chan struct{}

	// OnIdle registers a callback run on every idle tick.
	OnIdle(fn func())
}
