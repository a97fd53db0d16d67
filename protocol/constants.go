// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Wire protocol constants.

package protocol

import "math"

const (
	// HeaderSize is the length prefix size: uint16, little-endian.
	HeaderSize = 2

	// MaxPayload is the largest payload a single frame can declare.
	MaxPayload = math.MaxUint16

	// DefaultBufferSize holds one maximal frame including its header.
	DefaultBufferSize = HeaderSize + MaxPayload
)
