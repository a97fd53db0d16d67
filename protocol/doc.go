// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements the hioload-tcp wire format: a 2-byte
// little-endian length prefix followed by the payload, the Packer that
// reassembles frames from partial reads, and the message serializers.
package protocol
