// Package peer
// Author: momentics <momentics@gmail.com>
//
// Shared core of the client and server: service ownership, session id
// allocation, the session registry and the ordered shutdown sequence.
package peer
