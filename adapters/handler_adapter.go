// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// HandlerFuncs glue and middleware for api.Handler.

package adapters

import (
	"log/slog"
	"runtime/debug"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/internal/logger"
)

var (
	_ api.Handler             = HandlerFuncs{}
	_ api.ConnectErrorHandler = HandlerFuncs{}
	_ api.AcceptErrorHandler  = HandlerFuncs{}
)

// HandlerFuncs converts a set of optional functions into an api.Handler.
// Nil fields are no-ops.
type HandlerFuncs struct {
	Established   func(s api.Session)
	Closed        func(s api.Session, reason api.CloseReason)
	Frame         func(s api.Session, frame []byte)
	PeerClosing   func()
	ConnectFailed func(err error)
	AcceptFailed  func(err error)
}

func (f HandlerFuncs) OnSessionEstablished(s api.Session) {
	if f.Established != nil {
		f.Established(s)
	}
}

func (f HandlerFuncs) OnSessionClosed(s api.Session, reason api.CloseReason) {
	if f.Closed != nil {
		f.Closed(s, reason)
	}
}

func (f HandlerFuncs) Dispatch(s api.Session, frame []byte) {
	if f.Frame != nil {
		f.Frame(s, frame)
	}
}

func (f HandlerFuncs) OnPeerClosing() {
	if f.PeerClosing != nil {
		f.PeerClosing()
	}
}

func (f HandlerFuncs) OnConnectFailed(err error) {
	if f.ConnectFailed != nil {
		f.ConnectFailed(err)
	}
}

func (f HandlerFuncs) OnAcceptFailed(err error) {
	if f.AcceptFailed != nil {
		f.AcceptFailed(err)
	}
}

// Middleware decorates a Handler.
type Middleware func(api.Handler) api.Handler

// Chain applies middleware so that the first one is outermost.
func Chain(h api.Handler, mw ...Middleware) api.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// forwarder passes the optional error callbacks through when the wrapped
// handler has them.
type forwarder struct {
	next api.Handler
}

func (f forwarder) OnConnectFailed(err error) {
	if h, ok := f.next.(api.ConnectErrorHandler); ok {
		h.OnConnectFailed(err)
	}
}

func (f forwarder) OnAcceptFailed(err error) {
	if h, ok := f.next.(api.AcceptErrorHandler); ok {
		h.OnAcceptFailed(err)
	}
}

// LoggingMiddleware logs lifecycle callbacks at info and frames at debug.
func LoggingMiddleware(l *slog.Logger) Middleware {
	if l == nil {
		l = logger.Logger("handler")
	}
	return func(next api.Handler) api.Handler {
		return &loggingHandler{forwarder: forwarder{next}, log: l}
	}
}

type loggingHandler struct {
	forwarder
	log *slog.Logger
}

func (h *loggingHandler) OnSessionEstablished(s api.Session) {
	h.log.Info("session established", "session", s.ID(), "remote", s.RemoteAddr())
	h.next.OnSessionEstablished(s)
}

func (h *loggingHandler) OnSessionClosed(s api.Session, reason api.CloseReason) {
	h.log.Info("session closed", "session", s.ID(), "reason", reason)
	h.next.OnSessionClosed(s, reason)
}

func (h *loggingHandler) Dispatch(s api.Session, frame []byte) {
	h.log.Debug("frame", "session", s.ID(), "len", len(frame))
	h.next.Dispatch(s, frame)
}

func (h *loggingHandler) OnPeerClosing() {
	h.log.Info("peer closing")
	h.next.OnPeerClosing()
}

func (h *loggingHandler) OnConnectFailed(err error) {
	h.log.Warn("connect failed", "err", err)
	h.forwarder.OnConnectFailed(err)
}

func (h *loggingHandler) OnAcceptFailed(err error) {
	h.log.Warn("accept failed", "err", err)
	h.forwarder.OnAcceptFailed(err)
}

// RecoveryMiddleware recovers panics in every callback so one faulty
// frame cannot take the session's peer down. Recovered panics are logged
// with their stack and reported to onPanic when it is set.
func RecoveryMiddleware(onPanic func(r any)) Middleware {
	l := logger.Logger("handler")
	return func(next api.Handler) api.Handler {
		return &recoveryHandler{forwarder: forwarder{next}, log: l, onPanic: onPanic}
	}
}

type recoveryHandler struct {
	forwarder
	log     *slog.Logger
	onPanic func(r any)
}

func (h *recoveryHandler) guard(callback string) {
	if r := recover(); r != nil {
		h.log.Error("handler panicked", "callback", callback, "panic", r, "stack", string(debug.Stack()))
		if h.onPanic != nil {
			h.onPanic(r)
		}
	}
}

func (h *recoveryHandler) OnSessionEstablished(s api.Session) {
	defer h.guard("OnSessionEstablished")
	h.next.OnSessionEstablished(s)
}

func (h *recoveryHandler) OnSessionClosed(s api.Session, reason api.CloseReason) {
	defer h.guard("OnSessionClosed")
	h.next.OnSessionClosed(s, reason)
}

func (h *recoveryHandler) Dispatch(s api.Session, frame []byte) {
	defer h.guard("Dispatch")
	h.next.Dispatch(s, frame)
}

func (h *recoveryHandler) OnPeerClosing() {
	defer h.guard("OnPeerClosing")
	h.next.OnPeerClosing()
}

func (h *recoveryHandler) OnConnectFailed(err error) {
	defer h.guard("OnConnectFailed")
	h.forwarder.OnConnectFailed(err)
}

func (h *recoveryHandler) OnAcceptFailed(err error) {
	defer h.guard("OnAcceptFailed")
	h.forwarder.OnAcceptFailed(err)
}
