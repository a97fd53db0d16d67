// File: api/session.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session contract and close reasons.

package api

import "net"

// CloseReason tells the owner why a session terminated.
type CloseReason int

const (
	ClosedByMyself CloseReason = iota
	ClosedByRemotePeer
	ReadError
	WriteError
	PackError
)

func (r CloseReason) String() string {
	switch r {
	case ClosedByMyself:
		return "ClosedByMyself"
	case ClosedByRemotePeer:
		return "ClosedByRemotePeer"
	case ReadError:
		return "ReadError"
	case WriteError:
		return "WriteError"
	case PackError:
		return "PackError"
	default:
		return "Unknown"
	}
}

// Session is one live TCP connection owned by a peer.
type Session interface {
	// ID is unique for the lifetime of the owning peer.
	ID() int64

	// Send frames payload with a length header and queues it for writing.
	Send(payload []byte) error

	// SendMessage serializes msg with the peer serializer and sends it.
	SendMessage(msg any) error

	// SendWithHeader queues an already framed buffer.
	SendWithHeader(frame []byte) error

	// Close terminates the session. Only the first call has an effect.
	Close(reason CloseReason)

	// Closed reports whether Close has been invoked.
	Closed() bool

	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}
