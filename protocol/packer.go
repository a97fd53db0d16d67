// File: protocol/packer.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Packer extracts complete frames from a session receive buffer.

package protocol

import (
	"fmt"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-tcp/pool"
)

type packState uint8

const (
	awaitingLength packState = iota
	awaitingPayload
)

// Packer is a two-state frame extractor. It survives partial reads: a
// length header or payload split across receives is completed by the
// next Process call. Complete frames are kept in arrival order.
// Not safe for concurrent use; it lives on the session's net goroutine.
type Packer struct {
	state   packState
	pending int // declared payload length while awaitingPayload
	frames  *queue.Queue
}

// NewPacker creates an empty extractor.
func NewPacker() *Packer {
	return &Packer{frames: queue.New()}
}

// Process consumes as many complete frames from buf as possible.
// A declared length that buf could never hold yields ErrFrameTooLarge;
// the session must then be closed, the stream cannot be resynchronized.
func (p *Packer) Process(buf *pool.RingBuffer) error {
	for p.step(buf) {
		if p.state == awaitingLength {
			continue
		}
		if HeaderSize+p.pending > buf.Cap() {
			return fmt.Errorf("%w: declared %d bytes, buffer holds %d", ErrFrameTooLarge, p.pending, buf.Cap())
		}
	}

	switch {
	case buf.ReadableSize() == 0:
		buf.Reset()
	case buf.Overloaded():
		// partial frame pending at the end of the window
		buf.Compact()
	}
	return nil
}

// step advances the state machine once. It returns false when buf does
// not hold enough bytes for the current state.
func (p *Packer) step(buf *pool.RingBuffer) bool {
	switch p.state {
	case awaitingLength:
		n, ok := PayloadLen(buf.Readable())
		if !ok {
			return false
		}
		buf.MoveReadCursor(HeaderSize)
		p.pending = n
		p.state = awaitingPayload
		return true
	default:
		if buf.ReadableSize() < p.pending {
			return false
		}
		frame := make([]byte, p.pending)
		copy(frame, buf.Readable())
		buf.MoveReadCursor(p.pending)
		p.frames.Add(frame)
		p.pending = 0
		p.state = awaitingLength
		return true
	}
}

// Len returns the number of complete frames waiting.
func (p *Packer) Len() int {
	return p.frames.Length()
}

// Pop removes the oldest complete frame.
func (p *Packer) Pop() ([]byte, bool) {
	if p.frames.Length() == 0 {
		return nil, false
	}
	return p.frames.Remove().([]byte), true
}

// Drain hands every waiting frame to fn in arrival order.
func (p *Packer) Drain(fn func(frame []byte)) {
	for p.frames.Length() > 0 {
		fn(p.frames.Remove().([]byte))
	}
}
