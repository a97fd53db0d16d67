// File: server/types.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/session"
	"github.com/momentics/hioload-tcp/internal/transport"
	"github.com/momentics/hioload-tcp/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	IP                string                // IPv4 bind address, dotted quad
	Port              int                   // TCP port, 0 for ephemeral
	Backlog           int                   // listen(2) accept backlog
	Service           control.ServiceConfig // owned net/logic services
	ReceiveBufferSize int                   // per-session receive buffer
	RegistryShards    int                   // session registry shards
	AcceptQueueSize   int                   // accepted connections awaiting construction
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		IP:                "0.0.0.0",
		Backlog:           transport.DefaultBacklog,
		Service:           control.DefaultServiceConfig(),
		ReceiveBufferSize: protocol.DefaultBufferSize,
		RegistryShards:    session.DefaultShards,
		AcceptQueueSize:   1024,
	}
}

// State of the server.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateListening:
		return "Listening"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
