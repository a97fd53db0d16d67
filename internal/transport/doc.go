// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP socket setup for hioload-tcp peers: IPv4 address parsing, listening
// sockets with an explicit accept backlog, and dialing with socket tuning.
// Platform specifics are strictly separated by build tags.

package transport
