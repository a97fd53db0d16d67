package client_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/client"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/fake"
	"github.com/momentics/hioload-tcp/internal/transport"
	"github.com/momentics/hioload-tcp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 3 * time.Second

func rawServer(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := transport.Listen(net.IPv4(127, 0, 0, 1), 0, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func accept(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		if c, err := ln.Accept(); err == nil {
			ch <- c
		}
	}()
	select {
	case c := <-ch:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(wait):
		t.Fatal("accept timed out")
		return nil
	}
}

func newClient(t *testing.T, port int, h api.Handler, opts ...client.Option) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.Port = port
	cfg.Service = control.ServiceConfig{Capacity: 256, Period: 2 * time.Millisecond}
	c, err := client.New(cfg, h, opts...)
	require.NoError(t, err)
	return c
}

func stop(t *testing.T, c *client.Client) {
	t.Helper()
	c.Stop()
	select {
	case <-c.Done():
	case <-time.After(wait):
		t.Fatal("client did not stop")
	}
}

func expect(t *testing.T, h *fake.Handler, kind fake.Kind) fake.Event {
	t.Helper()
	ev, ok := h.NextOf(kind, wait)
	require.True(t, ok, "no %s event", kind)
	return ev
}

func TestNewValidatesConfig(t *testing.T) {
	h := fake.NewHandler(1)
	cfg := client.DefaultConfig()
	cfg.Port = 1
	cfg.IP = "not-an-ip"
	_, err := client.New(cfg, h)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	cfg.IP = "127.0.0.1"
	cfg.Port = 0
	_, err = client.New(cfg, h)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	cfg.Port = 1
	_, err = client.New(cfg, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestClientExchangesFrames(t *testing.T) {
	ln, port := rawServer(t)
	h := fake.NewHandler(64)
	c := newClient(t, port, h)
	assert.Nil(t, c.Session())
	assert.ErrorIs(t, c.Send([]byte("early")), api.ErrNotConnected)

	require.NoError(t, c.Start(context.Background()))
	srv := accept(t, ln)
	est := expect(t, h, fake.Established)
	assert.EqualValues(t, 1, est.Session.ID())
	assert.Equal(t, client.StateConnected, c.State())
	require.NotNil(t, c.Session())

	require.NoError(t, c.Send([]byte("ping")))
	buf := make([]byte, 6)
	_, err := io.ReadFull(srv, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0, 'p', 'i', 'n', 'g'}, buf)

	frame, err := protocol.EncodeFrame([]byte("pong"))
	require.NoError(t, err)
	_, err = srv.Write(frame)
	require.NoError(t, err)
	ev := expect(t, h, fake.Frame)
	assert.Equal(t, "pong", string(ev.Payload))

	stop(t, c)
	closed := expect(t, h, fake.Closed)
	assert.Equal(t, api.ClosedByMyself, closed.Reason)
	expect(t, h, fake.PeerClosing)
	assert.Equal(t, client.StateStopped, c.State())
	assert.ErrorIs(t, c.Connect(context.Background()), api.ErrPeerStopped)
}

func TestClientRemoteCloseAndReconnect(t *testing.T) {
	ln, port := rawServer(t)
	h := fake.NewHandler(64)
	c := newClient(t, port, h)
	defer stop(t, c)

	require.NoError(t, c.Start(context.Background()))
	srv := accept(t, ln)
	expect(t, h, fake.Established)
	assert.ErrorIs(t, c.Connect(context.Background()), api.ErrAlreadyStarted)

	require.NoError(t, srv.Close())
	ev := expect(t, h, fake.Closed)
	assert.Equal(t, api.ClosedByRemotePeer, ev.Reason)
	assert.Eventually(t, func() bool { return c.State() == client.StateIdle }, wait, time.Millisecond)

	require.NoError(t, c.Connect(context.Background()))
	accept(t, ln)
	est := expect(t, h, fake.Established)
	assert.EqualValues(t, 2, est.Session.ID())
}

func TestClientConnectFailure(t *testing.T) {
	ln, port := rawServer(t)
	require.NoError(t, ln.Close())

	h := fake.NewHandler(8)
	c := newClient(t, port, h)
	defer stop(t, c)

	require.NoError(t, c.Start(context.Background()))
	ev := expect(t, h, fake.ConnectFailed)
	assert.Error(t, ev.Err)
	assert.Eventually(t, func() bool { return c.State() == client.StateIdle }, wait, time.Millisecond)
	assert.Zero(t, h.Count(fake.Established))
}

func TestClientConnectBeforeStart(t *testing.T) {
	_, port := rawServer(t)
	c := newClient(t, port, fake.NewHandler(1))
	assert.ErrorIs(t, c.Connect(context.Background()), api.ErrNotConnected)
	stop(t, c)
}

func TestClientSendMessageUsesSerializer(t *testing.T) {
	ln, port := rawServer(t)
	h := fake.NewHandler(16)
	c := newClient(t, port, h, client.WithSerializer(protocol.RawSerializer{}))
	defer stop(t, c)

	require.NoError(t, c.Start(context.Background()))
	srv := accept(t, ln)
	expect(t, h, fake.Established)

	require.NoError(t, c.SendMessage("hello"))
	var hdr [protocol.HeaderSize]byte
	_, err := io.ReadFull(srv, hdr[:])
	require.NoError(t, err)
	body := make([]byte, binary.LittleEndian.Uint16(hdr[:]))
	_, err = io.ReadFull(srv, body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}
