// File: internal/session/registry.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session registry with lifecycle notifications.

package session

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/logger"
	"github.com/momentics/hioload-tcp/protocol"
	"go.uber.org/multierr"
)

// DefaultShards is used when NewRegistry gets a non-positive shard count.
const DefaultShards = 16

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegistryMetrics counts opened and closed sessions.
func WithRegistryMetrics(m *control.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithRegistrySerializer sets the serializer used by BroadcastMessage.
func WithRegistrySerializer(s protocol.Serializer) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.serializer = s
		}
	}
}

// Registry maps ids to live sessions.
type Registry struct {
	shards     []*registryShard
	mask       uint64
	count      atomic.Int64
	logic      api.Performer
	handler    api.Handler
	serializer protocol.Serializer
	metrics    *control.Metrics
	log        *slog.Logger
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry constructs a registry with shards rounded up to a power of two.
// Callbacks are posted to logic and invoked on handler.
func NewRegistry(logic api.Performer, handler api.Handler, shards int, opts ...RegistryOption) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	n := nextPowerOfTwo(uint32(shards))
	r := &Registry{
		shards:     make([]*registryShard, n),
		mask:       uint64(n - 1),
		logic:      logic,
		handler:    handler,
		serializer: protocol.RawSerializer{},
		log:        logger.Logger("registry"),
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{sessions: make(map[int64]*Session)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shard(id int64) *registryShard {
	return r.shards[uint64(id)&r.mask]
}

// Add inserts s and posts the established callback. A duplicate id is rejected.
func (r *Registry) Add(s *Session) error {
	sh := r.shard(s.id)
	sh.mu.Lock()
	if _, ok := sh.sessions[s.id]; ok {
		sh.mu.Unlock()
		r.log.Warn("duplicate session id", "session", s.id)
		return fmt.Errorf("session %d: %w", s.id, api.ErrAlreadyExists)
	}
	sh.sessions[s.id] = s
	sh.mu.Unlock()
	r.count.Add(1)
	r.metrics.SessionOpened()

	if err := r.logic.Perform(func() { r.established(s) }); err != nil {
		r.log.Debug("established callback dropped", "session", s.id, "err", err)
	}
	return nil
}

// Remove deletes the session with id and posts the closed callback.
// Unknown ids are logged and ignored.
func (r *Registry) Remove(id int64, reason api.CloseReason) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if !ok {
		r.log.Warn("remove of unknown session", "session", id, "reason", reason)
		return false
	}
	r.count.Add(-1)
	r.metrics.SessionClosed(reason)

	if err := r.logic.Perform(func() { r.closed(s, reason) }); err != nil {
		r.log.Debug("closed callback dropped", "session", id, "err", err)
	}
	return true
}

// established and closed run on the logic service. A close that races ahead
// of its established job is held until established has been delivered.
func (r *Registry) established(s *Session) {
	s.established = true
	r.handler.OnSessionEstablished(s)
	if s.closePending {
		s.closePending = false
		r.handler.OnSessionClosed(s, s.closeReason)
	}
}

func (r *Registry) closed(s *Session, reason api.CloseReason) {
	if !s.established {
		s.closePending = true
		s.closeReason = reason
		return
	}
	r.handler.OnSessionClosed(s, reason)
}

// Get fetches a session if present.
func (r *Registry) Get(id int64) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Range applies fn to every session until fn returns false.
// fn must not call Add or Remove.
func (r *Registry) Range(fn func(*Session) bool) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if !fn(s) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// Sessions returns a snapshot ordered by id.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, r.Count())
	r.Range(func(s *Session) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// First returns the live session with the lowest id, or nil.
func (r *Registry) First() *Session {
	var first *Session
	r.Range(func(s *Session) bool {
		if !s.Closed() && (first == nil || s.id < first.id) {
			first = s
		}
		return true
	})
	return first
}

// Clear closes every tracked session with ClosedByMyself. Notifications
// arrive through the regular teardown path.
func (r *Registry) Clear() {
	for _, s := range r.Sessions() {
		s.Close(api.ClosedByMyself)
	}
}

// Broadcast frames payload once and queues it on every session.
func (r *Registry) Broadcast(payload []byte) error {
	frame, err := protocol.EncodeFrame(payload)
	if err != nil {
		return err
	}
	return r.BroadcastWithHeader(frame)
}

// BroadcastMessage marshals msg once and broadcasts it.
func (r *Registry) BroadcastMessage(msg any) error {
	data, err := r.serializer.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broadcast: marshal: %w", err)
	}
	return r.Broadcast(data)
}

// BroadcastWithHeader queues a copy of frame on every session, so each send
// queue owns its buffer and the caller may reuse frame on return.
// Sessions that are already closed are skipped.
func (r *Registry) BroadcastWithHeader(frame []byte) error {
	var err error
	for _, s := range r.Sessions() {
		if serr := s.SendWithHeader(bytes.Clone(frame)); serr != nil && !errors.Is(serr, api.ErrSessionClosed) {
			err = multierr.Append(err, serr)
		}
	}
	return err
}

func nextPowerOfTwo(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
