// File: client/client.go
// Package client provides the active-connect peer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Client dials one server and runs at most one session at a time.
// Connects are asynchronous; results arrive as handler callbacks.
// There is no automatic reconnection: call Connect again after a failure
// or a close.

package client

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/peer"
	"github.com/momentics/hioload-tcp/internal/session"
	"github.com/momentics/hioload-tcp/internal/transport"
)

// State of the client connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Client is the active-connect peer.
type Client struct {
	cfg     Config
	ip      net.IP
	handler api.Handler
	base    *peer.Base
	state   atomic.Int32

	stopCtx context.Context
	stop    context.CancelFunc
}

// New validates cfg and prepares the client. Nothing runs until Start.
func New(cfg Config, handler api.Handler, opts ...Option) (*Client, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", api.ErrInvalidArgument)
	}
	ip, err := transport.ParseIPv4(cfg.IP)
	if err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", api.ErrInvalidArgument, cfg.Port)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultConfig().DialTimeout
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{cfg: cfg, ip: ip, handler: handler}
	c.stopCtx, c.stop = context.WithCancel(context.Background())
	c.base, err = peer.New(peer.Config{
		Name:           "client",
		Service:        cfg.Service,
		Session:        session.Config{ReceiveBufferSize: cfg.ReceiveBufferSize},
		RegistryShards: cfg.RegistryShards,
		Logic:          o.logic,
		Net:            o.net,
		Serializer:     o.serializer,
		Metrics:        o.metrics,
	}, &trackingHandler{Handler: handler, c: c})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Start starts owned services and issues the first connect. ctx only
// scopes the call: the connect it launches outlives ctx and is bounded by
// DialTimeout and Stop.
func (c *Client) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.base.Start(); err != nil {
		return err
	}
	return c.Connect(context.WithoutCancel(ctx))
}

// Connect issues one asynchronous connect attempt, cancelled by ctx,
// DialTimeout or Stop, whichever comes first. It fails with
// api.ErrAlreadyStarted while an attempt is in flight or a session is live.
func (c *Client) Connect(ctx context.Context) error {
	if !c.base.Started() {
		return fmt.Errorf("client: %w: call Start first", api.ErrNotConnected)
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		if c.State() == StateStopped {
			return api.ErrPeerStopped
		}
		return api.ErrAlreadyStarted
	}
	go c.dial(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) {
	log := c.base.Logger()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	unregister := context.AfterFunc(c.stopCtx, cancel)
	defer unregister()

	addr := transport.JoinHostPort(c.ip, c.cfg.Port)
	conn, err := transport.Dial(ctx, c.ip, c.cfg.Port)
	if err != nil {
		log.Warn("connect failed", "addr", addr, "err", err)
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateIdle))
		c.reportConnectError(fmt.Errorf("connect %s: %w", addr, err))
		return
	}
	// Connected is published before the session can close and report Idle.
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		_ = conn.Close()
		return
	}
	if _, err := c.base.Attach(conn); err != nil {
		log.Debug("connected after stop", "addr", addr, "err", err)
		c.state.CompareAndSwap(int32(StateConnected), int32(StateIdle))
		return
	}
	log.Info("connected", "addr", addr, "local", conn.LocalAddr())
}

func (c *Client) reportConnectError(err error) {
	h, ok := c.handler.(api.ConnectErrorHandler)
	if !ok {
		return
	}
	if perr := c.base.PerformInLogic(func() { h.OnConnectFailed(err) }); perr != nil {
		c.base.Logger().Debug("connect error callback dropped", "err", perr)
	}
}

// State returns the connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// Session returns the live session or nil.
func (c *Client) Session() api.Session {
	if s := c.base.Registry().First(); s != nil {
		return s
	}
	return nil
}

// Send frames payload on the live session.
func (c *Client) Send(payload []byte) error {
	s := c.base.Registry().First()
	if s == nil {
		return api.ErrNotConnected
	}
	return s.Send(payload)
}

// SendMessage serializes msg and sends it on the live session.
func (c *Client) SendMessage(msg any) error {
	s := c.base.Registry().First()
	if s == nil {
		return api.ErrNotConnected
	}
	return s.SendMessage(msg)
}

// Stop closes the session, cancels a pending connect and stops owned
// services. It returns immediately; wait on Done.
func (c *Client) Stop() {
	c.state.Store(int32(StateStopped))
	c.stop()
	c.base.Stop()
}

// Done is closed once Stop has completed.
func (c *Client) Done() <-chan struct{} { return c.base.Done() }

// PerformInLogic queues job on the logic service.
func (c *Client) PerformInLogic(job func()) error { return c.base.PerformInLogic(job) }

// PerformInNet queues job on the net service.
func (c *Client) PerformInNet(job func()) error { return c.base.PerformInNet(job) }

// LogicService returns the logic service, owned or shared.
func (c *Client) LogicService() api.Service { return c.base.LogicService() }

// NetService returns the net service, owned or shared.
func (c *Client) NetService() api.Service { return c.base.NetService() }

// Registry exposes the session registry.
func (c *Client) Registry() *session.Registry { return c.base.Registry() }

// Probes exposes debug probes.
func (c *Client) Probes() *control.DebugProbes { return c.base.Probes() }

// trackingHandler moves the client back to Idle when its session closes.
type trackingHandler struct {
	api.Handler
	c *Client
}

func (h *trackingHandler) OnSessionClosed(s api.Session, reason api.CloseReason) {
	h.c.state.CompareAndSwap(int32(StateConnected), int32(StateIdle))
	h.Handler.OnSessionClosed(s, reason)
}
