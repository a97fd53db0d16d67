// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent entry points for listening and dialing.

package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/momentics/hioload-tcp/api"
)

// DefaultBacklog is the accept queue length used when none is configured.
const DefaultBacklog = 10

// KeepAlivePeriod is applied to every connection.
const KeepAlivePeriod = 30 * time.Second

// ParseIPv4 accepts a dotted-quad address and returns its 4-byte form.
func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q is not an IP address", api.ErrInvalidArgument, s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%w: %q is not an IPv4 address", api.ErrInvalidArgument, s)
	}
	return v4, nil
}

// Listen opens a TCP listener on ip:port with the given accept backlog.
// Port 0 binds an ephemeral port; read it back from the listener's Addr.
func Listen(ip net.IP, port, backlog int) (net.Listener, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%w: listen address %v is not IPv4", api.ErrInvalidArgument, ip)
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", api.ErrInvalidArgument, port)
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	ln, err := listen(v4, port, backlog)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", JoinHostPort(v4, port), err)
	}
	return ln, nil
}

// Dial connects to ip:port, honouring ctx for cancellation and deadline.
func Dial(ctx context.Context, ip net.IP, port int) (net.Conn, error) {
	d := net.Dialer{KeepAlive: KeepAlivePeriod}
	conn, err := d.DialContext(ctx, "tcp4", JoinHostPort(ip, port))
	if err != nil {
		return nil, err
	}
	Tune(conn)
	return conn, nil
}

// Tune disables Nagle and enables keep-alive on TCP connections.
func Tune(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	_ = tc.SetKeepAlive(true)
	_ = tc.SetKeepAlivePeriod(KeepAlivePeriod)
}

// JoinHostPort formats ip and port as host:port.
func JoinHostPort(ip net.IP, port int) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}
