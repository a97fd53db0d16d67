// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Protocol level errors.

package protocol

import "errors"

var (
	// ErrFrameTooLarge is returned for frames that can never be carried,
	// either by the wire format or by the receive buffer.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrUnsupportedType is returned by serializers for foreign values.
	ErrUnsupportedType = errors.New("unsupported message type")
)
