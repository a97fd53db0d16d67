// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording api.Handler for tests of peers and middleware.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-tcp/api"
)

// Kind of a recorded callback.
type Kind string

const (
	Established   Kind = "established"
	Closed        Kind = "closed"
	Frame         Kind = "frame"
	PeerClosing   Kind = "peer-closing"
	ConnectFailed Kind = "connect-failed"
	AcceptFailed  Kind = "accept-failed"
)

// Event is one recorded callback.
type Event struct {
	Kind    Kind
	Session api.Session
	Reason  api.CloseReason
	Payload []byte
	Err     error
}

var (
	_ api.Handler             = (*Handler)(nil)
	_ api.ConnectErrorHandler = (*Handler)(nil)
	_ api.AcceptErrorHandler  = (*Handler)(nil)
)

// Handler records every callback in arrival order and publishes it on a
// buffered channel. OnFrame, when set, runs inside Dispatch.
type Handler struct {
	OnFrame func(s api.Session, frame []byte)

	events chan Event
	mu     sync.Mutex
	log    []Event
}

// NewHandler buffers up to capacity unread events; further events block the
// logic service until read.
func NewHandler(capacity int) *Handler {
	return &Handler{events: make(chan Event, capacity)}
}

func (h *Handler) record(ev Event) {
	h.mu.Lock()
	h.log = append(h.log, ev)
	h.mu.Unlock()
	h.events <- ev
}

func (h *Handler) OnSessionEstablished(s api.Session) {
	h.record(Event{Kind: Established, Session: s})
}

func (h *Handler) OnSessionClosed(s api.Session, reason api.CloseReason) {
	h.record(Event{Kind: Closed, Session: s, Reason: reason})
}

func (h *Handler) Dispatch(s api.Session, frame []byte) {
	if h.OnFrame != nil {
		h.OnFrame(s, frame)
	}
	h.record(Event{Kind: Frame, Session: s, Payload: frame})
}

func (h *Handler) OnPeerClosing() {
	h.record(Event{Kind: PeerClosing})
}

func (h *Handler) OnConnectFailed(err error) {
	h.record(Event{Kind: ConnectFailed, Err: err})
}

func (h *Handler) OnAcceptFailed(err error) {
	h.record(Event{Kind: AcceptFailed, Err: err})
}

// Next waits up to timeout for the next unread event.
func (h *Handler) Next(timeout time.Duration) (Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

// NextOf skips events until one of kind arrives or timeout elapses.
func (h *Handler) NextOf(kind Kind, timeout time.Duration) (Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				return ev, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}

// Events returns every callback recorded so far.
func (h *Handler) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.log...)
}

// Count returns how many recorded events have kind.
func (h *Handler) Count(kind Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.log {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
