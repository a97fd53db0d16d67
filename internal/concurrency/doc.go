// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-tcp peers.
//
// Service is a bounded, single-consumer job queue: every job posted to one
// Service runs on the same goroutine, in posting order, never concurrently
// with another job of that Service. Peers run two of them: a network domain
// that owns socket state and a logic domain that owns user handlers.
//
// Ring is a padded single-producer/single-consumer queue used to hand off
// accepted connections without locks.
package concurrency
