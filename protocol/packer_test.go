package protocol_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-tcp/pool"
	"github.com/momentics/hioload-tcp/protocol"
)

// feed copies chunk into the buffer's writable region piece by piece, the
// way consecutive socket reads would, running the packer after each read.
func feed(t *testing.T, p *protocol.Packer, rb *pool.RingBuffer, chunk []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for len(chunk) > 0 {
		require.Positive(t, rb.WritableSize(), "receive window exhausted")
		n := copy(rb.Writable(), chunk)
		rb.MoveWriteCursor(n)
		chunk = chunk[n:]
		require.NoError(t, p.Process(rb))
		p.Drain(func(f []byte) { out = append(out, f) })
	}
	return out
}

func makeFrames(rng *rand.Rand, count, maxLen int) ([][]byte, []byte) {
	var payloads [][]byte
	var stream []byte
	for i := 0; i < count; i++ {
		payload := make([]byte, rng.Intn(maxLen+1))
		rng.Read(payload)
		payloads = append(payloads, payload)
		stream, _ = protocol.AppendFrame(stream, payload)
	}
	return payloads, stream
}

func TestPackerArbitraryChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		payloads, stream := makeFrames(rng, 1+rng.Intn(20), 300)

		p := protocol.NewPacker()
		rb := pool.NewRingBuffer(protocol.HeaderSize + 300)

		var got [][]byte
		for len(stream) > 0 {
			cut := 1 + rng.Intn(len(stream))
			got = append(got, feed(t, p, rb, stream[:cut])...)
			stream = stream[cut:]
		}

		require.Len(t, got, len(payloads), "round %d", round)
		for i := range payloads {
			assert.True(t, bytes.Equal(payloads[i], got[i]), "round %d frame %d", round, i)
		}
	}
}

func TestPackerByteAtATime(t *testing.T) {
	payloads := [][]byte{[]byte("ping"), {}, []byte("pong!")}
	var stream []byte
	for _, pl := range payloads {
		stream, _ = protocol.AppendFrame(stream, pl)
	}

	p := protocol.NewPacker()
	rb := pool.NewRingBuffer(16)
	var got [][]byte
	for i := range stream {
		got = append(got, feed(t, p, rb, stream[i:i+1])...)
	}
	assert.Equal(t, payloads, got)
}

func TestPackerRejectsImpossibleLength(t *testing.T) {
	for _, declared := range []int{15, 100, protocol.MaxPayload} {
		t.Run(fmt.Sprint(declared), func(t *testing.T) {
			p := protocol.NewPacker()
			rb := pool.NewRingBuffer(16)
			binary.LittleEndian.PutUint16(rb.Writable(), uint16(declared))
			rb.MoveWriteCursor(protocol.HeaderSize)

			err := p.Process(rb)
			require.ErrorIs(t, err, protocol.ErrFrameTooLarge)
			assert.Equal(t, 0, p.Len())
		})
	}
}

func TestPackerLargestFrameThatFits(t *testing.T) {
	p := protocol.NewPacker()
	rb := pool.NewRingBuffer(16)
	payload := bytes.Repeat([]byte{0xAB}, 14)
	frame, err := protocol.EncodeFrame(payload)
	require.NoError(t, err)

	got := feed(t, p, rb, frame)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}

func TestPackerCompactsPartialFrame(t *testing.T) {
	p := protocol.NewPacker()
	rb := pool.NewRingBuffer(10)

	first, _ := protocol.EncodeFrame([]byte("abcd"))   // 6 bytes
	second, _ := protocol.EncodeFrame([]byte("efghij")) // 8 bytes
	stream := append(first, second...)

	// fill the window exactly: frame one plus half of frame two
	rb.MoveWriteCursor(copy(rb.Writable(), stream[:10]))
	require.NoError(t, p.Process(rb))
	f, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte("abcd"), f)

	// the partial payload was moved to the front, room for the rest
	assert.False(t, rb.Overloaded())
	got := feed(t, p, rb, stream[10:])
	assert.Equal(t, [][]byte{[]byte("efghij")}, got)
}

func TestEncodeFrame(t *testing.T) {
	frame, err := protocol.EncodeFrame([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x00, 'p', 'i', 'n', 'g'}, frame)

	_, err = protocol.EncodeFrame(make([]byte, protocol.MaxPayload+1))
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)

	n, ok := protocol.PayloadLen(frame)
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	_, ok = protocol.PayloadLen(frame[:1])
	assert.False(t, ok)
}
