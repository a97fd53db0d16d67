// File: client/config.go
// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/protocol"
)

// Config holds all client-side configuration parameters.
type Config struct {
	IP                string                // remote IPv4 address, dotted quad
	Port              int                   // remote TCP port
	Service           control.ServiceConfig // owned net/logic services
	ReceiveBufferSize int                   // per-session receive buffer
	RegistryShards    int                   // session registry shards
	DialTimeout       time.Duration         // bound on a single connect attempt
}

// DefaultConfig returns sensible defaults for a local peer.
func DefaultConfig() Config {
	return Config{
		IP:                "127.0.0.1",
		Service:           control.DefaultServiceConfig(),
		ReceiveBufferSize: protocol.DefaultBufferSize,
		RegistryShards:    1,
		DialTimeout:       5 * time.Second,
	}
}
