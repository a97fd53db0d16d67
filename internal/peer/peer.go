// File: internal/peer/peer.go
// Package peer
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package peer

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/concurrency"
	"github.com/momentics/hioload-tcp/internal/logger"
	"github.com/momentics/hioload-tcp/internal/session"
	"github.com/momentics/hioload-tcp/protocol"
)

var _ session.Host = (*Base)(nil)

// Config assembles a Base.
type Config struct {
	// Name labels logs, metrics and owned services.
	Name string
	// Service configures owned services.
	Service control.ServiceConfig
	// Session configures every session.
	Session session.Config
	// RegistryShards is rounded up to a power of two.
	RegistryShards int
	// Logic and Net, when set, are shared services: the peer uses them but
	// never starts or stops them.
	Logic api.Service
	Net   api.Service
	// Serializer defaults to protocol.RawSerializer.
	Serializer protocol.Serializer
	// Metrics may be nil.
	Metrics *control.Metrics
}

// Base implements session.Host for a peer.
type Base struct {
	name       string
	handler    api.Handler
	logic      api.Service
	net        api.Service
	ownLogic   bool
	ownNet     bool
	registry   *session.Registry
	serializer protocol.Serializer
	metrics    *control.Metrics
	sessionCfg session.Config
	probes     *control.DebugProbes
	log        *slog.Logger

	nextID    atomic.Int64
	started   atomic.Bool
	stopping  atomic.Bool
	startOnce sync.Once
	startErr  error
	done      chan struct{}
}

// New validates cfg and creates any service that is not shared.
func New(cfg Config, handler api.Handler) (*Base, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", api.ErrInvalidArgument)
	}
	if cfg.Name == "" {
		cfg.Name = "peer"
	}
	b := &Base{
		name:       cfg.Name,
		handler:    handler,
		logic:      cfg.Logic,
		net:        cfg.Net,
		serializer: cfg.Serializer,
		metrics:    cfg.Metrics,
		sessionCfg: cfg.Session.WithDefaults(),
		probes:     control.NewDebugProbes(),
		log:        logger.Logger(cfg.Name),
		done:       make(chan struct{}),
	}
	if b.serializer == nil {
		b.serializer = protocol.RawSerializer{}
	}
	var err error
	if b.net == nil {
		if b.net, err = concurrency.NewService(cfg.Name+"-net", cfg.Service); err != nil {
			return nil, err
		}
		b.ownNet = true
	}
	if b.logic == nil {
		if b.logic, err = concurrency.NewService(cfg.Name+"-logic", cfg.Service); err != nil {
			return nil, err
		}
		b.ownLogic = true
	}
	b.registry = session.NewRegistry(b.logic, handler, cfg.RegistryShards,
		session.WithRegistryMetrics(cfg.Metrics),
		session.WithRegistrySerializer(b.serializer))
	b.instrument()
	return b, nil
}

func (b *Base) instrument() {
	b.metrics.WatchSessions(b.registry.Count)
	if src, ok := b.net.(control.StatsSource); ok {
		b.metrics.WatchService(b.name+"-net", src)
		b.probes.RegisterProbe("service.net", func() any { return src.Stats() })
	}
	if src, ok := b.logic.(control.StatsSource); ok {
		b.metrics.WatchService(b.name+"-logic", src)
		b.probes.RegisterProbe("service.logic", func() any { return src.Stats() })
	}
	b.probes.RegisterProbe("sessions.count", func() any { return b.registry.Count() })
}

// Start starts owned services. It is safe to call more than once.
func (b *Base) Start() error {
	if b.stopping.Load() {
		return api.ErrPeerStopped
	}
	b.startOnce.Do(func() {
		if b.ownNet {
			if err := b.net.Start(); err != nil {
				b.startErr = fmt.Errorf("%s: start net service: %w", b.name, err)
				return
			}
		}
		if b.ownLogic {
			if err := b.logic.Start(); err != nil {
				b.startErr = fmt.Errorf("%s: start logic service: %w", b.name, err)
				return
			}
		}
		b.started.Store(true)
	})
	return b.startErr
}

// Attach wraps conn in a new session, registers it and starts receiving.
func (b *Base) Attach(conn net.Conn) (*session.Session, error) {
	if b.stopping.Load() {
		_ = conn.Close()
		return nil, api.ErrPeerStopped
	}
	s := session.New(b.nextID.Add(1), conn, b, b.sessionCfg)
	if err := b.registry.Add(s); err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.Start()
	return s, nil
}

// Stop closes every session, announces OnPeerClosing and then stops the
// owned net and logic services in that order. It returns immediately;
// Done is closed when the sequence has finished.
func (b *Base) Stop() {
	if !b.stopping.CompareAndSwap(false, true) {
		return
	}
	b.log.Info("peer stopping", "sessions", b.registry.Count())
	b.registry.Clear()

	// Routed through net so the closed callbacks queued by teardown come first.
	closing := func() {
		if err := b.logic.Perform(b.handler.OnPeerClosing); err != nil {
			b.log.Debug("peer closing callback dropped", "err", err)
		}
	}
	if err := b.net.Perform(closing); err != nil {
		closing()
	}

	go func() {
		defer close(b.done)
		if b.ownNet {
			b.net.Stop()
			<-b.net.Done()
		}
		if b.ownLogic {
			b.logic.Stop()
			<-b.logic.Done()
		}
		b.log.Info("peer stopped")
	}()
}

// Done is closed once Stop has completed.
func (b *Base) Done() <-chan struct{} { return b.done }

// Started reports whether Start has succeeded.
func (b *Base) Started() bool { return b.started.Load() }

// Stopping reports whether Stop has been called.
func (b *Base) Stopping() bool { return b.stopping.Load() }

// Name returns the peer label.
func (b *Base) Name() string { return b.name }

// Logger returns the peer subsystem logger.
func (b *Base) Logger() *slog.Logger { return b.log }

// PerformInNet implements session.Host.
func (b *Base) PerformInNet(job func()) error { return b.net.Perform(job) }

// PerformInLogic implements session.Host.
func (b *Base) PerformInLogic(job func()) error { return b.logic.Perform(job) }

// Registry implements session.Host.
func (b *Base) Registry() *session.Registry { return b.registry }

// Handler implements session.Host.
func (b *Base) Handler() api.Handler { return b.handler }

// Serializer implements session.Host.
func (b *Base) Serializer() protocol.Serializer { return b.serializer }

// Metrics implements session.Host.
func (b *Base) Metrics() *control.Metrics { return b.metrics }

// LogicService returns the logic service, owned or shared.
func (b *Base) LogicService() api.Service { return b.logic }

// NetService returns the net service, owned or shared.
func (b *Base) NetService() api.Service { return b.net }

// Probes exposes the debug probes of this peer.
func (b *Base) Probes() *control.DebugProbes { return b.probes }
