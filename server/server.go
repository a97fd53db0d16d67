// File: server/server.go
// Package server implements the listening peer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The accept loop only accepts: connections are handed over a lock-free
// single-producer/single-consumer ring to a construction worker that builds,
// registers and starts sessions. Both loops run under one errgroup.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/concurrency"
	"github.com/momentics/hioload-tcp/internal/peer"
	"github.com/momentics/hioload-tcp/internal/session"
	"github.com/momentics/hioload-tcp/internal/transport"
	"golang.org/x/sync/errgroup"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server is the listening peer.
type Server struct {
	cfg    Config
	ip     net.IP
	base   *peer.Base
	listen func(ip net.IP, port, backlog int) (net.Listener, error)

	state    atomic.Int32
	mu       sync.Mutex // guards ln and the quit/Go handshake
	ln       net.Listener
	accepted *concurrency.Ring[net.Conn]
	wake     chan struct{}
	quit     chan struct{}
	group    errgroup.Group
	stopOnce sync.Once
	done     chan struct{}
}

// New validates cfg and prepares the server. Nothing runs until Start.
func New(cfg Config, handler api.Handler, opts ...Option) (*Server, error) {
	ip, err := transport.ParseIPv4(cfg.IP)
	if err != nil {
		return nil, err
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", api.ErrInvalidArgument, cfg.Port)
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = transport.DefaultBacklog
	}
	if cfg.AcceptQueueSize <= 0 {
		cfg.AcceptQueueSize = DefaultConfig().AcceptQueueSize
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	base, err := peer.New(peer.Config{
		Name:           "server",
		Service:        cfg.Service,
		Session:        session.Config{ReceiveBufferSize: cfg.ReceiveBufferSize},
		RegistryShards: cfg.RegistryShards,
		Logic:          o.logic,
		Net:            o.net,
		Serializer:     o.serializer,
		Metrics:        o.metrics,
	}, handler)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		ip:       ip,
		base:     base,
		listen:   transport.Listen,
		accepted: concurrency.NewRing[net.Conn](cfg.AcceptQueueSize),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	base.Probes().RegisterProbe("server.accept_queue", func() any { return s.accepted.Len() })
	return s, nil
}

// Start listens, starts owned services and launches the accept loop and the
// construction worker. ctx only guards the setup.
func (s *Server) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateListening)) {
		if s.State() == StateStopped {
			return api.ErrPeerStopped
		}
		return api.ErrAlreadyStarted
	}
	if err := s.base.Start(); err != nil {
		s.Stop()
		return err
	}
	ln, err := s.listen(s.ip, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		s.Stop()
		return fmt.Errorf("server: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quitting() {
		_ = ln.Close()
		return api.ErrPeerStopped
	}
	s.ln = ln
	s.base.Logger().Info("listening", "addr", ln.Addr(), "backlog", s.cfg.Backlog)

	s.group.Go(s.acceptLoop)
	s.group.Go(s.constructLoop)
	return nil
}

func (s *Server) acceptLoop() error {
	log := s.base.Logger()
	backoff := time.Duration(0)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.quitting() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			log.Warn("accept failed", "err", err, "retry_in", backoff)
			s.reportAcceptError(err)
			select {
			case <-s.quit:
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		transport.Tune(conn)
		if !s.handOff(conn) {
			_ = conn.Close()
			return nil
		}
	}
}

// reportAcceptError posts err to the handler on the logic service when it
// implements api.AcceptErrorHandler.
func (s *Server) reportAcceptError(err error) {
	h, ok := s.base.Handler().(api.AcceptErrorHandler)
	if !ok {
		return
	}
	if perr := s.base.PerformInLogic(func() { h.OnAcceptFailed(err) }); perr != nil {
		s.base.Logger().Debug("accept error callback dropped", "err", perr)
	}
}

// handOff queues conn for construction, waiting while the ring is full.
func (s *Server) handOff(conn net.Conn) bool {
	for !s.accepted.Enqueue(conn) {
		select {
		case <-s.quit:
			return false
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Server) constructLoop() error {
	log := s.base.Logger()
	for {
		for {
			if s.quitting() {
				return nil
			}
			conn, ok := s.accepted.Dequeue()
			if !ok {
				break
			}
			sess, err := s.base.Attach(conn)
			if err != nil {
				log.Warn("session rejected", "remote", conn.RemoteAddr(), "err", err)
				continue
			}
			log.Debug("session accepted", "session", sess.ID(), "remote", sess.RemoteAddr())
		}
		select {
		case <-s.wake:
		case <-s.quit:
			return nil
		}
	}
}

func (s *Server) quitting() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// Stop closes the listener, joins both loops, closes connections that were
// accepted but never constructed, then stops the peer. It returns
// immediately and is idempotent; wait on Done.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateStopped))
		s.mu.Lock()
		close(s.quit)
		ln := s.ln
		s.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
		go func() {
			defer close(s.done)
			if err := s.group.Wait(); err != nil {
				s.base.Logger().Error("server loops failed", "err", err)
			}
			for {
				conn, ok := s.accepted.Dequeue()
				if !ok {
					break
				}
				_ = conn.Close()
			}
			s.base.Stop()
			<-s.base.Done()
		}()
	})
}

// Done is closed once Stop has completed.
func (s *Server) Done() <-chan struct{} { return s.done }

// State returns the server state.
func (s *Server) State() State { return State(s.state.Load()) }

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.State() != StateListening {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if a, ok := s.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int { return s.base.Registry().Count() }

// Broadcast frames payload once and queues it on every session.
func (s *Server) Broadcast(payload []byte) error { return s.base.Registry().Broadcast(payload) }

// BroadcastMessage serializes msg once and broadcasts it.
func (s *Server) BroadcastMessage(msg any) error { return s.base.Registry().BroadcastMessage(msg) }

// PerformInLogic queues job on the logic service.
func (s *Server) PerformInLogic(job func()) error { return s.base.PerformInLogic(job) }

// PerformInNet queues job on the net service.
func (s *Server) PerformInNet(job func()) error { return s.base.PerformInNet(job) }

// LogicService returns the logic service, owned or shared.
func (s *Server) LogicService() api.Service { return s.base.LogicService() }

// NetService returns the net service, owned or shared.
func (s *Server) NetService() api.Service { return s.base.NetService() }

// Registry exposes the session registry.
func (s *Server) Registry() *session.Registry { return s.base.Registry() }

// Probes exposes debug probes.
func (s *Server) Probes() *control.DebugProbes { return s.base.Probes() }
