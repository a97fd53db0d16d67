package fake

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRecordsInOrder(t *testing.T) {
	h := NewHandler(8)
	h.OnSessionEstablished(nil)
	h.Dispatch(nil, []byte("x"))
	h.OnSessionClosed(nil, api.ReadError)
	h.OnConnectFailed(errors.New("refused"))
	h.OnPeerClosing()

	ev, ok := h.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, Established, ev.Kind)

	ev, ok = h.NextOf(Closed, time.Second)
	require.True(t, ok)
	assert.Equal(t, api.ReadError, ev.Reason)

	assert.Equal(t, 1, h.Count(Frame))
	assert.Len(t, h.Events(), 5)

	_, ok = h.NextOf(Established, 10*time.Millisecond)
	assert.False(t, ok)
}
