// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-capacity receive buffer with read and write cursors.

package pool

import "fmt"

// RingBuffer is a fixed-capacity byte buffer with a write cursor (tail)
// and a read cursor (head). Invariant: 0 <= head <= tail <= len(data).
// The writable region is always contiguous; when it is exhausted the
// buffer is Overloaded and must be Reset or Compacted by the consumer.
type RingBuffer struct {
	data []byte
	head int // read cursor
	tail int // write cursor
}

// NewRingBuffer allocates a buffer of capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("ring buffer capacity must be positive")
	}
	return &RingBuffer{data: make([]byte, capacity)}
}

// Writable returns the region starting at the write cursor.
// Bytes written into it become visible after MoveWriteCursor.
func (r *RingBuffer) Writable() []byte {
	return r.data[r.tail:]
}

// WritableSize is the space left before the end of the buffer.
func (r *RingBuffer) WritableSize() int {
	return len(r.data) - r.tail
}

// MoveWriteCursor commits n bytes written into Writable.
func (r *RingBuffer) MoveWriteCursor(n int) {
	if n < 0 || n > r.WritableSize() {
		panic(fmt.Sprintf("ring buffer: write of %d exceeds writable size %d", n, r.WritableSize()))
	}
	r.tail += n
}

// Readable returns the unread bytes between the cursors.
func (r *RingBuffer) Readable() []byte {
	return r.data[r.head:r.tail]
}

// ReadableSize is the number of unread bytes.
func (r *RingBuffer) ReadableSize() int {
	return r.tail - r.head
}

// MoveReadCursor consumes n unread bytes.
func (r *RingBuffer) MoveReadCursor(n int) {
	if n < 0 || n > r.ReadableSize() {
		panic(fmt.Sprintf("ring buffer: read of %d exceeds readable size %d", n, r.ReadableSize()))
	}
	r.head += n
}

// Overloaded reports that the write cursor reached the capacity.
func (r *RingBuffer) Overloaded() bool {
	return r.tail == len(r.data)
}

// Reset collapses both cursors to zero, discarding unread bytes.
func (r *RingBuffer) Reset() {
	r.head, r.tail = 0, 0
}

// Compact moves unread bytes to the start of the buffer.
func (r *RingBuffer) Compact() {
	if r.head == 0 {
		return
	}
	n := copy(r.data, r.data[r.head:r.tail])
	r.head, r.tail = 0, n
}

// Cap returns the fixed capacity.
func (r *RingBuffer) Cap() int {
	return len(r.data)
}
