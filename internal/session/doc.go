// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection sessions and the registry that tracks them.
//
// A Session owns one net.Conn, a receive RingBuffer with its frame Packer and
// a FIFO of outgoing frames. All of that state is touched only by jobs on the
// peer's net service; a reader and a writer goroutine per session perform the
// blocking syscalls and hand every completion back to the net service.
//
// The Registry maps session ids to sessions and delivers the established and
// closed callbacks to the handler on the logic service, once each, in that order.

package session
