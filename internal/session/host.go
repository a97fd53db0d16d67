// File: internal/session/host.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Host is the peer-side view a session needs.

package session

import (
	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/protocol"
)

// Host is implemented by peers. Sessions keep a non-owning reference to it.
type Host interface {
	// PerformInNet queues job on the network service.
	PerformInNet(job func()) error
	// PerformInLogic queues job on the logic service.
	PerformInLogic(job func()) error
	// Registry tracks the host's sessions.
	Registry() *Registry
	// Handler receives dispatched frames.
	Handler() api.Handler
	// Serializer encodes SendMessage payloads.
	Serializer() protocol.Serializer
	// Metrics may be nil.
	Metrics() *control.Metrics
}

// Config tunes a session.
type Config struct {
	// ReceiveBufferSize is the RingBuffer capacity. It bounds the largest
	// acceptable frame to ReceiveBufferSize-protocol.HeaderSize bytes.
	ReceiveBufferSize int
}

// DefaultConfig fits the largest legal frame.
func DefaultConfig() Config {
	return Config{ReceiveBufferSize: protocol.DefaultBufferSize}
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = protocol.DefaultBufferSize
	}
	return c
}
