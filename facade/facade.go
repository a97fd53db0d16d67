// File: facade/facade.go
// Dependency-injection facade for hioload-tcp.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fx modules that assemble shared services, metrics and peers and bind their
// start/stop to the application lifecycle. Shared services are started
// before and stopped after every peer that uses them.

package facade

import (
	"context"
	"fmt"

	"github.com/momentics/hioload-tcp/adapters"
	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/client"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/logger"
	"github.com/momentics/hioload-tcp/protocol"
	"github.com/momentics/hioload-tcp/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "hioload"

// Logger routes fx lifecycle events through the "fx" subsystem logger.
var Logger = fx.WithLogger(func() fxevent.Logger {
	return &fxevent.SlogLogger{Logger: logger.Logger("fx")}
})

// SharedServices are one net and one logic service used by several peers.
type SharedServices struct {
	Net   *adapters.ServiceAdapter
	Logic *adapters.ServiceAdapter
}

// ServicesModule provides *SharedServices. Peers built by ServerModule and
// ClientModule pick them up automatically.
var ServicesModule = fx.Module("hioload/services",
	fx.Provide(ProvideSharedServices),
)

// MetricsModule provides *control.Metrics registered with the supplied
// prometheus.Registerer, or the default registerer when none is supplied.
var MetricsModule = fx.Module("hioload/metrics",
	fx.Provide(ProvideMetrics),
)

// ServerModule provides and runs a *server.Server. It needs a server.Config
// and an api.Handler in the graph.
var ServerModule = fx.Module("hioload/server",
	fx.Provide(ProvideServer),
	fx.Invoke(registerServerLifecycle),
)

// ClientModule provides and runs a *client.Client. It needs a client.Config
// and an api.Handler in the graph.
var ClientModule = fx.Module("hioload/client",
	fx.Provide(ProvideClient),
	fx.Invoke(registerClientLifecycle),
)

// ServicesInput configures shared services.
type ServicesInput struct {
	fx.In
	LC     fx.Lifecycle
	Config control.ServiceConfig `optional:"true"`
}

// ProvideSharedServices builds both services and registers their lifecycle.
func ProvideSharedServices(in ServicesInput) (*SharedServices, error) {
	netSvc, err := adapters.NewService("shared-net", in.Config)
	if err != nil {
		return nil, err
	}
	logicSvc, err := adapters.NewService("shared-logic", in.Config)
	if err != nil {
		return nil, err
	}
	svcs := &SharedServices{Net: netSvc, Logic: logicSvc}
	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := svcs.Net.Start(); err != nil {
				return fmt.Errorf("shared net: %w", err)
			}
			if err := svcs.Logic.Start(); err != nil {
				return fmt.Errorf("shared logic: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			svcs.Net.Stop()
			if err := waitDone(ctx, svcs.Net.Done()); err != nil {
				return err
			}
			svcs.Logic.Stop()
			return waitDone(ctx, svcs.Logic.Done())
		},
	})
	return svcs, nil
}

// MetricsInput selects the prometheus registerer.
type MetricsInput struct {
	fx.In
	LC         fx.Lifecycle
	Registerer prometheus.Registerer `optional:"true"`
}

// ProvideMetrics builds and registers collectors; they are unregistered on stop.
func ProvideMetrics(in MetricsInput) (*control.Metrics, error) {
	reg := in.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := control.NewMetrics(MetricsNamespace)
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	in.LC.Append(fx.StopHook(func() { m.Unregister(reg) }))
	return m, nil
}

// ServerInput is what ServerModule draws from the graph.
type ServerInput struct {
	fx.In
	Config     server.Config
	Handler    api.Handler
	Services   *SharedServices     `optional:"true"`
	Metrics    *control.Metrics    `optional:"true"`
	Serializer protocol.Serializer `optional:"true"`
}

// ProvideServer builds a server from the graph.
func ProvideServer(in ServerInput) (*server.Server, error) {
	var opts []server.Option
	if in.Services != nil {
		opts = append(opts, server.WithNetService(in.Services.Net), server.WithLogicService(in.Services.Logic))
	}
	if in.Metrics != nil {
		opts = append(opts, server.WithMetrics(in.Metrics))
	}
	if in.Serializer != nil {
		opts = append(opts, server.WithSerializer(in.Serializer))
	}
	return server.New(in.Config, in.Handler, opts...)
}

func registerServerLifecycle(lc fx.Lifecycle, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop: func(ctx context.Context) error {
			srv.Stop()
			return waitDone(ctx, srv.Done())
		},
	})
}

// ClientInput is what ClientModule draws from the graph.
type ClientInput struct {
	fx.In
	Config     client.Config
	Handler    api.Handler
	Services   *SharedServices     `optional:"true"`
	Metrics    *control.Metrics    `optional:"true"`
	Serializer protocol.Serializer `optional:"true"`
}

// ProvideClient builds a client from the graph.
func ProvideClient(in ClientInput) (*client.Client, error) {
	var opts []client.Option
	if in.Services != nil {
		opts = append(opts, client.WithNetService(in.Services.Net), client.WithLogicService(in.Services.Logic))
	}
	if in.Metrics != nil {
		opts = append(opts, client.WithMetrics(in.Metrics))
	}
	if in.Serializer != nil {
		opts = append(opts, client.WithSerializer(in.Serializer))
	}
	return client.New(in.Config, in.Handler, opts...)
}

func registerClientLifecycle(lc fx.Lifecycle, c *client.Client) {
	lc.Append(fx.Hook{
		// the connect itself is asynchronous; a refused connect is reported
		// to the handler, not to the lifecycle
		OnStart: c.Start,
		OnStop: func(ctx context.Context) error {
			c.Stop()
			return waitDone(ctx, c.Done())
		},
	})
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
