package netopts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFindReturnsLastMatchOfType(t *testing.T) {
	opts := []Option{
		NoDelay(true),
		RecvBufferSize(1024),
		RecvBufferSize(2048),
	}

	got, ok := Find(opts, TypeRecvBufferSize)
	require.True(t, ok)
	require.Equal(t, 2048, got.Value())
}

func TestFindMissingType(t *testing.T) {
	_, ok := Find([]Option{NoDelay(true)}, TypeBindAddress)
	require.False(t, ok)
}

func TestOptionConstructorsRoundTripTypeAndValue(t *testing.T) {
	require.Equal(t, TypeNonblocking, Nonblocking(true).Type())
	require.Equal(t, true, Nonblocking(true).Value())

	require.Equal(t, TypeKeepalive, Keepalive(30*time.Second).Type())
	require.Equal(t, 30*time.Second, Keepalive(30*time.Second).Value())

	require.Equal(t, TypeBindAddress, Bind("127.0.0.1:0").Type())
	require.Equal(t, "127.0.0.1:0", Bind("127.0.0.1:0").Value())
}

func TestOptionTypeString(t *testing.T) {
	require.Equal(t, "no_delay", TypeNoDelay.String())
	require.Equal(t, "bind_address", TypeBindAddress.String())
}
