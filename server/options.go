// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/protocol"
)

// Option customizes server initialization.
type Option func(*options)

type options struct {
	logic      api.Service
	net        api.Service
	serializer protocol.Serializer
	metrics    *control.Metrics
}

// WithLogicService shares an externally managed logic service.
func WithLogicService(svc api.Service) Option {
	return func(o *options) { o.logic = svc }
}

// WithNetService shares an externally managed net service.
func WithNetService(svc api.Service) Option {
	return func(o *options) { o.net = svc }
}

// WithSerializer sets the serializer used by SendMessage and BroadcastMessage.
func WithSerializer(s protocol.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithMetrics records session and service telemetry.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
