package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/momentics/hioload-tcp/protocol"
)

func TestProtoSerializer(t *testing.T) {
	var s protocol.ProtoSerializer
	b, err := s.Marshal(wrapperspb.String("hello"))
	require.NoError(t, err)

	var out wrapperspb.StringValue
	require.NoError(t, s.Unmarshal(b, &out))
	assert.Equal(t, "hello", out.GetValue())

	_, err = s.Marshal("not a proto")
	assert.ErrorIs(t, err, protocol.ErrUnsupportedType)
	assert.ErrorIs(t, s.Unmarshal(b, new(string)), protocol.ErrUnsupportedType)
}

func TestRawSerializer(t *testing.T) {
	var s protocol.RawSerializer
	b, err := s.Marshal("chat line")
	require.NoError(t, err)
	assert.Equal(t, []byte("chat line"), b)

	var str string
	require.NoError(t, s.Unmarshal(b, &str))
	assert.Equal(t, "chat line", str)

	_, err = s.Marshal(42)
	assert.ErrorIs(t, err, protocol.ErrUnsupportedType)
}

func TestCompressedSerializer(t *testing.T) {
	s := protocol.Compressed(protocol.ProtoSerializer{})
	msg := wrapperspb.Bytes(make([]byte, 4096))

	b, err := s.Marshal(msg)
	require.NoError(t, err)
	assert.Less(t, len(b), 4096)

	var out wrapperspb.BytesValue
	require.NoError(t, s.Unmarshal(b, &out))
	assert.Len(t, out.GetValue(), 4096)

	assert.Error(t, s.Unmarshal([]byte{0xff, 0xff, 0xff}, &out))
}
