// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session: asynchronous receive and send over one TCP connection.

package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/internal/logger"
	"github.com/momentics/hioload-tcp/pool"
	"github.com/momentics/hioload-tcp/protocol"
	"go.uber.org/multierr"
)

var _ api.Session = (*Session)(nil)

// Session is one framed connection. Buffers, the packer and the send queue
// belong to the net service; the reader and writer goroutines borrow them
// only between a request and its completion.
type Session struct {
	id   int64
	conn net.Conn
	host Host
	log  *slog.Logger

	// net service only
	buf     *pool.RingBuffer
	packer  *protocol.Packer
	sendQ   *queue.Queue
	writing bool

	// logic service only, see Registry
	established  bool
	closePending bool
	closeReason  api.CloseReason

	readReq  chan struct{}
	writeReq chan []byte
	quit     chan struct{}

	started atomic.Bool
	closed  atomic.Bool

	bytesReceived  atomic.Uint64
	bytesSent      atomic.Uint64
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
	queued         atomic.Int64
}

// Stats are traffic counters of one session.
type Stats struct {
	BytesReceived  uint64
	BytesSent      uint64
	FramesReceived uint64
	FramesSent     uint64
}

// New wraps conn. The session does nothing until Start.
func New(id int64, conn net.Conn, host Host, cfg Config) *Session {
	cfg = cfg.WithDefaults()
	return &Session{
		id:       id,
		conn:     conn,
		host:     host,
		log:      logger.Logger("session").With("session", id),
		buf:      pool.NewRingBuffer(cfg.ReceiveBufferSize),
		packer:   protocol.NewPacker(),
		sendQ:    queue.New(),
		readReq:  make(chan struct{}, 1),
		writeReq: make(chan []byte, 1),
		quit:     make(chan struct{}),
	}
}

// ID returns the peer-unique identifier.
func (s *Session) ID() int64 { return s.id }

// RemoteAddr returns the remote network address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// LocalAddr returns the local network address.
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// SendingQueueLen returns the number of frames waiting behind the in-flight write.
func (s *Session) SendingQueueLen() int { return int(s.queued.Load()) }

// Stats returns a snapshot of traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		BytesReceived:  s.bytesReceived.Load(),
		BytesSent:      s.bytesSent.Load(),
		FramesReceived: s.framesReceived.Load(),
		FramesSent:     s.framesSent.Load(),
	}
}

// Start launches the I/O goroutines and requests the first receive.
// Register the session before starting it so that the established callback
// precedes every dispatched frame.
func (s *Session) Start() {
	if s.closed.Load() || !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.readLoop()
	go s.writeLoop()
	s.requestRead()
}

// Send frames payload and queues it. The payload is copied.
func (s *Session) Send(payload []byte) error {
	frame, err := protocol.EncodeFrame(payload)
	if err != nil {
		return fmt.Errorf("session %d: %w", s.id, err)
	}
	return s.SendWithHeader(frame)
}

// SendMessage marshals msg with the host serializer and sends it.
func (s *Session) SendMessage(msg any) error {
	data, err := s.host.Serializer().Marshal(msg)
	if err != nil {
		return fmt.Errorf("session %d: marshal: %w", s.id, err)
	}
	return s.Send(data)
}

// SendWithHeader queues frame, which must already carry its length prefix.
// The session takes ownership of frame until it has been written.
func (s *Session) SendWithHeader(frame []byte) error {
	if s.closed.Load() {
		return api.ErrSessionClosed
	}
	if err := s.host.PerformInNet(func() { s.enqueue(frame) }); err != nil {
		return fmt.Errorf("session %d: %w", s.id, err)
	}
	return nil
}

// Close terminates the session. Only the first call has an effect; teardown
// runs on the net service, or inline when that service is already gone.
func (s *Session) Close(reason api.CloseReason) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err := s.host.PerformInNet(func() { s.teardown(reason) }); err != nil {
		s.teardown(reason)
	}
}

// closeOnNet is Close for code that already runs on the net service. Posting
// the teardown there would wait on the very queue this goroutine drains.
func (s *Session) closeOnNet(reason api.CloseReason) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.teardown(reason)
}

func (s *Session) requestRead() {
	select {
	case s.readReq <- struct{}{}:
	default:
	}
}

func (s *Session) readLoop() {
	for {
		select {
		case <-s.quit:
			return
		case <-s.readReq:
		}
		n, err := s.conn.Read(s.buf.Writable())
		if perr := s.host.PerformInNet(func() { s.onReceived(n, err) }); perr != nil {
			s.Close(api.ClosedByMyself)
			return
		}
	}
}

func (s *Session) writeLoop() {
	for {
		var frame []byte
		select {
		case <-s.quit:
			return
		case frame = <-s.writeReq:
		}
		n, err := s.conn.Write(frame)
		if perr := s.host.PerformInNet(func() { s.onWritten(n, err) }); perr != nil {
			s.Close(api.ClosedByMyself)
			return
		}
	}
}

// onReceived is the receive completion, on the net service.
func (s *Session) onReceived(n int, err error) {
	if s.closed.Load() {
		return
	}
	if n > 0 {
		s.buf.MoveWriteCursor(n)
		s.bytesReceived.Add(uint64(n))
		s.host.Metrics().BytesRead(n)
		if perr := s.packer.Process(s.buf); perr != nil {
			s.log.Warn("malformed stream", "remote", s.conn.RemoteAddr(), "err", perr)
			s.closeOnNet(api.PackError)
			return
		}
		s.dispatch()
	}
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			s.closeOnNet(api.ClosedByRemotePeer)
		default:
			s.log.Debug("read failed", "err", err)
			s.closeOnNet(api.ReadError)
		}
		return
	}
	if n == 0 {
		s.closeOnNet(api.ClosedByRemotePeer)
		return
	}
	if s.buf.WritableSize() == 0 {
		// cannot happen while the packer compacts; refuse to spin on empty reads
		s.closeOnNet(api.PackError)
		return
	}
	s.requestRead()
}

func (s *Session) dispatch() {
	handler := s.host.Handler()
	m := s.host.Metrics()
	s.packer.Drain(func(frame []byte) {
		s.framesReceived.Add(1)
		m.FrameReceived()
		if err := s.host.PerformInLogic(func() { handler.Dispatch(s, frame) }); err != nil {
			s.log.Debug("frame dropped", "err", err)
		}
	})
}

// enqueue runs on the net service.
func (s *Session) enqueue(frame []byte) {
	if s.closed.Load() {
		return
	}
	s.framesSent.Add(1)
	s.host.Metrics().FrameSent()
	if s.writing {
		s.sendQ.Add(frame)
		s.queued.Add(1)
		return
	}
	s.issueWrite(frame)
}

func (s *Session) issueWrite(frame []byte) {
	s.writing = true
	s.writeReq <- frame
}

// onWritten is the send completion, on the net service.
func (s *Session) onWritten(n int, err error) {
	if s.closed.Load() {
		return
	}
	s.writing = false
	if n > 0 {
		s.bytesSent.Add(uint64(n))
		s.host.Metrics().BytesWritten(n)
	}
	if err != nil {
		s.log.Debug("write failed", "err", err)
		s.closeOnNet(api.WriteError)
		return
	}
	if s.sendQ.Length() > 0 {
		next := s.sendQ.Remove().([]byte)
		s.queued.Add(-1)
		s.issueWrite(next)
	}
}

// teardown runs once per session.
func (s *Session) teardown(reason api.CloseReason) {
	close(s.quit)
	for s.sendQ.Length() > 0 {
		s.sendQ.Remove()
	}
	s.queued.Store(0)

	var err error
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		err = multierr.Append(err, cw.CloseWrite())
	}
	err = multierr.Append(err, s.conn.Close())
	if err != nil {
		s.log.Debug("socket close", "err", err)
	}
	s.log.Debug("session closed", "reason", reason, "remote", s.conn.RemoteAddr())

	s.host.Registry().Remove(s.id, reason)
}
