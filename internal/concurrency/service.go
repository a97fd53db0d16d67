// File: internal/concurrency/service.go
// Package concurrency implements the single-consumer job queue service.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Service drains a bounded channel of jobs on one goroutine. Each loop
// iteration runs jobs until the period budget is spent or no job arrives in
// time, then fires the idle callbacks. Stop drains what is already queued;
// a job accepted by Perform always runs before Done is closed.

package concurrency

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/logger"
)

var _ api.Service = (*Service)(nil)

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger replaces the default "concurrency" subsystem logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service is a bounded FIFO of jobs executed by a single goroutine.
type Service struct {
	name string
	cfg  control.ServiceConfig
	jobs chan func()
	idle atomic.Pointer[[]func()]
	log  *slog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	// exiting is raised once the consumer stops accepting jobs. Producers
	// between enter and leave are counted in inflight and swept before exit.
	exiting  atomic.Bool
	exitCh   chan struct{}
	inflight atomic.Int64

	executed    atomic.Uint64
	panics      atomic.Uint64
	rate        atomic.Uint64
	workTime    atomic.Int64
	idleTime    atomic.Int64
	windowStart time.Time // consumer goroutine only
	windowCount uint64    // consumer goroutine only
}

// NewService creates a stopped service. Zero config fields take defaults;
// invalid values are rejected.
func NewService(name string, cfg control.ServiceConfig, opts ...ServiceOption) (*Service, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("service %q: %w", name, err)
	}
	s := &Service{
		name:   name,
		cfg:    cfg,
		jobs:   make(chan func(), cfg.Capacity),
		log:    logger.Logger("concurrency"),
		stopCh: make(chan struct{}),
		exitCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.idle.Store(&[]func(){})
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the service label used in logs and metrics.
func (s *Service) Name() string { return s.name }

// Len returns the number of queued jobs.
func (s *Service) Len() int { return len(s.jobs) }

// Cap returns the queue capacity.
func (s *Service) Cap() int { return cap(s.jobs) }

// Config returns the effective configuration.
func (s *Service) Config() control.ServiceConfig { return s.cfg }

// Start launches the consumer goroutine.
func (s *Service) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyStarted
	}
	go s.run()
	return nil
}

// Stop signals the consumer to drain and exit. It does not wait; use Done or Wait.
// Safe to call from a job of this service and more than once. A service
// that was never started runs only the drain, so queued jobs still execute.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.CompareAndSwap(false, true) {
			go s.run()
		}
	})
}

// Done is closed after the consumer goroutine has exited.
func (s *Service) Done() <-chan struct{} { return s.done }

// Wait blocks until Done is closed. Never call it from a job of this service.
func (s *Service) Wait() { <-s.done }

// Perform enqueues job, blocking while the queue is full.
// Returns api.ErrServiceStopped once the consumer has stopped accepting jobs.
func (s *Service) Perform(job func()) error {
	if job == nil {
		return api.ErrInvalidArgument
	}
	if !s.enter() {
		return api.ErrServiceStopped
	}
	defer s.leave()
	select {
	case s.jobs <- job:
		return nil
	case <-s.exitCh:
		return api.ErrServiceStopped
	}
}

// TryPerform enqueues job without blocking; false if the queue is full or stopped.
func (s *Service) TryPerform(job func()) bool {
	if job == nil || !s.enter() {
		return false
	}
	defer s.leave()
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// enter registers a producer. Once exiting is visible it refuses; a producer
// that got in is waited for by finish, so its job cannot be left behind.
func (s *Service) enter() bool {
	s.inflight.Add(1)
	if s.exiting.Load() {
		s.inflight.Add(-1)
		return false
	}
	return true
}

func (s *Service) leave() { s.inflight.Add(-1) }

// OnIdle registers fn to run on the consumer goroutine after every loop.
func (s *Service) OnIdle(fn func()) {
	if fn == nil {
		return
	}
	for {
		old := s.idle.Load()
		next := make([]func(), len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, fn)
		if s.idle.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Stats returns a snapshot of counters.
func (s *Service) Stats() control.ServiceStats {
	return control.ServiceStats{
		Name:          s.name,
		Pending:       len(s.jobs),
		Capacity:      cap(s.jobs),
		Executed:      s.executed.Load(),
		Panics:        s.panics.Load(),
		JobsPerSecond: s.rate.Load(),
		WorkTime:      time.Duration(s.workTime.Load()),
		IdleTime:      time.Duration(s.idleTime.Load()),
	}
}

func (s *Service) run() {
	defer close(s.done)
	s.log.Debug("service started", "service", s.name,
		"capacity", s.cfg.Capacity, "period", s.cfg.Period)

	timer := time.NewTimer(s.cfg.Period)
	stopTimer(timer)
	defer timer.Stop()

	s.windowStart = time.Now()
	for {
		select {
		case <-s.stopCh:
			n := s.drain(timer)
			n += s.finish()
			s.log.Debug("service stopped", "service", s.name, "drained", n)
			return
		default:
		}
		start := time.Now()
		s.work(start, timer)
		s.workTime.Store(int64(time.Since(start)))
		s.fireIdle()
	}
}

// work executes jobs until the period budget elapses, no job shows up within
// the remaining budget, or stop is requested.
func (s *Service) work(start time.Time, timer *time.Timer) {
	for {
		remaining := s.cfg.Period - time.Since(start)
		if remaining <= 0 {
			return
		}
		select {
		case job := <-s.jobs:
			s.execute(job)
			continue
		default:
		}
		timer.Reset(remaining)
		select {
		case job := <-s.jobs:
			stopTimer(timer)
			s.execute(job)
		case <-timer.C:
			return
		case <-s.stopCh:
			stopTimer(timer)
			return
		}
	}
}

// drain runs queued jobs, waiting up to DrainWait for each next one.
func (s *Service) drain(timer *time.Timer) int {
	wait := s.cfg.DrainWait()
	n := 0
	for {
		timer.Reset(wait)
		select {
		case job := <-s.jobs:
			stopTimer(timer)
			s.execute(job)
			n++
		case <-timer.C:
			return n
		}
	}
}

// finish closes the queue to new producers, waits out the ones already
// inside Perform and runs whatever they managed to enqueue.
func (s *Service) finish() int {
	s.exiting.Store(true)
	close(s.exitCh)
	n := 0
	for {
		n += s.sweep()
		if s.inflight.Load() == 0 {
			break
		}
		runtime.Gosched()
	}
	return n + s.sweep()
}

// sweep runs every job currently queued without waiting for more.
func (s *Service) sweep() int {
	n := 0
	for {
		select {
		case job := <-s.jobs:
			s.execute(job)
			n++
		default:
			return n
		}
	}
}

func (s *Service) execute(job func()) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Error("job panicked", "service", s.name,
				"panic", r, "stack", string(debug.Stack()))
		}
		s.executed.Add(1)
		s.measure()
	}()
	job()
}

// measure updates the jobs-per-second gauge once per elapsed second.
func (s *Service) measure() {
	s.windowCount++
	elapsed := time.Since(s.windowStart)
	if elapsed < time.Second {
		return
	}
	s.rate.Store(uint64(float64(s.windowCount) / elapsed.Seconds()))
	s.windowCount = 0
	s.windowStart = time.Now()
}

func (s *Service) fireIdle() {
	handlers := *s.idle.Load()
	if len(handlers) == 0 {
		return
	}
	start := time.Now()
	for _, fn := range handlers {
		s.callIdle(fn)
	}
	s.idleTime.Store(int64(time.Since(start)))
}

func (s *Service) callIdle(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Error("idle callback panicked", "service", s.name,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// PerformWith posts fn(param) to p. The closure captures param at call time.
func PerformWith[T any](p api.Performer, fn func(T), param T) error {
	if fn == nil {
		return api.ErrInvalidArgument
	}
	return p.Perform(func() { fn(param) })
}
