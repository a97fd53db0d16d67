// File: api/handler.go
// Package api defines the application callbacks of a peer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler receives session lifecycle notifications and frames.
// Every method is invoked on the logic service goroutine.
type Handler interface {
	// OnSessionEstablished fires once per registered session.
	OnSessionEstablished(s Session)

	// OnSessionClosed fires exactly once per registered session.
	OnSessionClosed(s Session, reason CloseReason)

	// Dispatch delivers one complete frame payload, in arrival order.
	Dispatch(s Session, frame []byte)

	// OnPeerClosing fires once when the owning peer stops.
	OnPeerClosing()
}

// ConnectErrorHandler is optionally implemented by a Handler to learn
// about failed client connects.
type ConnectErrorHandler interface {
	OnConnectFailed(err error)
}

// AcceptErrorHandler is optionally implemented by a Handler to learn about
// accept failures of a listening server. The accept loop keeps retrying.
type AcceptErrorHandler interface {
	OnAcceptFailed(err error)
}
