// File: adapters/service_adapter.go
// Package adapters provides glue between internal concurrency and api.Service.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ServiceAdapter exposes the internal single-consumer job queue so that
// applications can run shared net and logic services across several peers.

package adapters

import (
	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/concurrency"
)

var (
	_ api.Service         = (*ServiceAdapter)(nil)
	_ control.StatsSource = (*ServiceAdapter)(nil)
)

// ServiceAdapter wraps an internal concurrency.Service to satisfy api.Service.
type ServiceAdapter struct {
	svc *concurrency.Service
}

// NewService constructs a stopped service. Zero config fields take defaults.
func NewService(name string, cfg control.ServiceConfig) (*ServiceAdapter, error) {
	svc, err := concurrency.NewService(name, cfg)
	if err != nil {
		return nil, err
	}
	return &ServiceAdapter{svc: svc}, nil
}

// Perform enqueues job, blocking while the queue is full.
func (a *ServiceAdapter) Perform(job func()) error { return a.svc.Perform(job) }

// TryPerform enqueues job only if there is room.
func (a *ServiceAdapter) TryPerform(job func()) bool { return a.svc.TryPerform(job) }

// Start launches the consumer goroutine.
func (a *ServiceAdapter) Start() error { return a.svc.Start() }

// Stop asks the consumer to drain and exit.
func (a *ServiceAdapter) Stop() { a.svc.Stop() }

// Done is closed once the consumer has exited.
func (a *ServiceAdapter) Done() <-chan struct{} { return a.svc.Done() }

// Wait blocks until Done. Never call it from a job of this service.
func (a *ServiceAdapter) Wait() { a.svc.Wait() }

// OnIdle registers a callback run on every idle tick.
func (a *ServiceAdapter) OnIdle(fn func()) { a.svc.OnIdle(fn) }

// Stats returns a snapshot of service counters.
func (a *ServiceAdapter) Stats() control.ServiceStats { return a.svc.Stats() }

// Name returns the service label.
func (a *ServiceAdapter) Name() string { return a.svc.Name() }

// PerformWith posts fn(param) to p, binding param at call time.
func PerformWith[T any](p api.Performer, fn func(T), param T) error {
	return concurrency.PerformWith(p, fn, param)
}
