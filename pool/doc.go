// Package pool
// Author: momentics <momentics@gmail.com>
//
// Receive-side memory layer for hioload-tcp.
// RingBuffer is the fixed-capacity byte buffer every session reads into and
// the frame extractor consumes from. It is owned by exactly one session and
// only touched from that session's net service goroutine, so it carries no
// locking of its own.
package pool
