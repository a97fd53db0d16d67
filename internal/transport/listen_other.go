//go:build !unix

// internal/transport/listen_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable listener. The runtime picks the backlog on these platforms.

package transport

import (
	"context"
	"net"
)

func listen(ip net.IP, port, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", JoinHostPort(ip, port))
}
