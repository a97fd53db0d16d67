package session

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicate(t *testing.T) {
	h := newTestHost(t)
	s, _ := h.open(t, 5, DefaultConfig())

	local, remote := net.Pipe()
	defer remote.Close()
	defer local.Close()
	dup := New(5, local, h, DefaultConfig())
	assert.ErrorIs(t, h.reg.Add(dup), api.ErrAlreadyExists)
	assert.Equal(t, 1, h.reg.Count())

	got, ok := h.reg.Get(5)
	require.True(t, ok)
	assert.Same(t, s, got)
	h.handler.quiet(t, 30*time.Millisecond)
}

func TestRegistryRemoveUnknownIsSilent(t *testing.T) {
	h := newTestHost(t)
	assert.False(t, h.reg.Remove(42, api.ReadError))
	h.handler.quiet(t, 30*time.Millisecond)
}

func TestRegistryClearClosesEverySession(t *testing.T) {
	h := newTestHost(t)
	for id := int64(1); id <= 3; id++ {
		h.open(t, id, DefaultConfig())
	}
	assert.Equal(t, 3, h.reg.Count())
	assert.Equal(t, int64(1), h.reg.First().ID())

	h.reg.Clear()
	seen := map[int64]api.CloseReason{}
	for i := 0; i < 3; i++ {
		ev := h.handler.next(t)
		require.Equal(t, "closed", ev.kind)
		seen[ev.id] = ev.reason
	}
	assert.Equal(t, map[int64]api.CloseReason{1: api.ClosedByMyself, 2: api.ClosedByMyself, 3: api.ClosedByMyself}, seen)
	assert.Eventually(t, func() bool { return h.reg.Count() == 0 }, time.Second, time.Millisecond)
	assert.Nil(t, h.reg.First())
	h.handler.quiet(t, 30*time.Millisecond)
}

func TestRegistryBroadcastReachesAll(t *testing.T) {
	h := newTestHost(t)
	var remotes []net.Conn
	for id := int64(1); id <= 4; id++ {
		_, remote := h.open(t, id, DefaultConfig())
		remotes = append(remotes, remote)
	}
	require.NoError(t, h.reg.Broadcast([]byte("all")))
	for _, r := range remotes {
		assert.Equal(t, "all", readFrame(t, r))
	}
	require.NoError(t, h.reg.BroadcastMessage("again"))
	for _, r := range remotes {
		assert.Equal(t, "again", readFrame(t, r))
	}
}

func TestRegistryBroadcastCopiesFrame(t *testing.T) {
	h := newTestHost(t)
	_, r1 := h.open(t, 1, DefaultConfig())
	_, r2 := h.open(t, 2, DefaultConfig())

	// hold the net service so the sends are still queued when the caller reuses frame
	gate := make(chan struct{})
	require.NoError(t, h.net.Perform(func() { <-gate }))
	frame := frameOf("keep")
	require.NoError(t, h.reg.BroadcastWithHeader(frame))
	copy(frame[protocol.HeaderSize:], "lost")
	close(gate)

	assert.Equal(t, "keep", readFrame(t, r1))
	assert.Equal(t, "keep", readFrame(t, r2))
}

func TestRegistryHoldsEarlyClose(t *testing.T) {
	h := newTestHost(t)
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(9, local, h, DefaultConfig())

	// run the closed job before the established job ever gets queued
	done := make(chan struct{})
	require.NoError(t, h.logic.Perform(func() {
		h.reg.closed(s, api.ReadError)
		h.reg.established(s)
		close(done)
	}))
	<-done
	assert.Equal(t, "established", h.handler.next(t).kind)
	assert.Equal(t, event{kind: "closed", id: 9, reason: api.ReadError}, h.handler.next(t))
}

func TestRegistrySessionsSorted(t *testing.T) {
	h := newTestHost(t)
	for _, id := range []int64{8, 2, 5} {
		h.open(t, id, DefaultConfig())
	}
	var ids []int64
	for _, s := range h.reg.Sessions() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []int64{2, 5, 8}, ids)
}
