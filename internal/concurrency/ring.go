// File: internal/concurrency/ring.go
// Package concurrency implements lock-free ring buffers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring is a bounded circular buffer with atomic head/tail,
// padded to prevent false sharing.

package concurrency

import "sync/atomic"

// Ring is safe for exactly one producer goroutine and one consumer goroutine.
type Ring[T any] struct {
	data []T
	mask uint64
	head atomic.Uint64
	_    [64]byte
	tail atomic.Uint64
	_    [64]byte
}

// NewRing allocates a ring with capacity rounded up to a power of two.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	size := nextPowerOfTwo(uint64(capacity))
	return &Ring[T]{
		data: make([]T, size),
		mask: size - 1,
	}
}

// Enqueue adds item; returns false if full. Producer side only.
func (r *Ring[T]) Enqueue(item T) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = item
	r.tail.Store(tail + 1)
	return true
}

// Dequeue removes and returns the oldest item; ok false if empty. Consumer side only.
func (r *Ring[T]) Dequeue() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head >= tail {
		return zero, false
	}
	slot := head & r.mask
	item := r.data[slot]
	// release the reference so drained connections can be collected
	r.data[slot] = zero
	r.head.Store(head + 1)
	return item, true
}

// Len returns number of items currently in buffer.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns fixed buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

func nextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
