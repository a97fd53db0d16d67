// File: protocol/frame.go
// Package protocol implements the length-prefixed frame codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire format: [uint16 little-endian length][length bytes payload].

package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeFrame returns payload prefixed with its length header.
func EncodeFrame(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// AppendFrame appends the header and payload to dst.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrFrameTooLarge, len(payload))
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

// PayloadLen decodes the length header at the start of b.
func PayloadLen(b []byte) (int, bool) {
	if len(b) < HeaderSize {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(b)), true
}
