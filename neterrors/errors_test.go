package neterrors

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromErrnoMapsKnownValues(t *testing.T) {
	cases := []struct {
		errno syscall.Errno
		want  error
	}{
		{syscall.EAGAIN, ErrWouldBlock},
		{syscall.EWOULDBLOCK, ErrWouldBlock},
		{syscall.EINTR, ErrCancelled},
		{syscall.ETIMEDOUT, ErrTimeout},
		{syscall.ECONNREFUSED, ErrConnRefused},
		{syscall.ECONNRESET, ErrConnReset},
		{syscall.ECONNABORTED, ErrConnAborted},
		{syscall.ENOTCONN, ErrNotConnected},
		{syscall.EISCONN, ErrAlreadyConnected},
		{syscall.EHOSTUNREACH, ErrHostUnreachable},
		{syscall.ENETUNREACH, ErrNetworkUnreachable},
		{syscall.EADDRINUSE, ErrAddressInUse},
		{syscall.EPIPE, ErrBrokenPipe},
		{syscall.EINPROGRESS, ErrInProgress},
		{syscall.EALREADY, ErrInProgress},
		{syscall.ENOBUFS, ErrNoBufferSpaceAvailable},
	}

	for _, c := range cases {
		require.Equal(t, c.want, FromErrno(c.errno))
	}
}

func TestFromErrnoPassesThroughUnknownOrNonErrno(t *testing.T) {
	require.Equal(t, syscall.ENOENT, FromErrno(syscall.ENOENT))

	plain := errors.New("boom")
	require.Equal(t, plain, FromErrno(plain))
}

func TestIsWouldBlock(t *testing.T) {
	require.True(t, IsWouldBlock(ErrWouldBlock))
	require.True(t, IsWouldBlock(fmtWrap(ErrWouldBlock)))
	require.False(t, IsWouldBlock(ErrTimeout))
}

func TestIsFatal(t *testing.T) {
	require.False(t, IsFatal(nil))
	require.False(t, IsFatal(ErrWouldBlock))
	require.False(t, IsFatal(ErrTimeout))
	require.False(t, IsFatal(ErrNeedMore))
	require.True(t, IsFatal(ErrConnReset))
	require.True(t, IsFatal(errors.New("unexpected")))
}

func fmtWrap(err error) error {
	return errors.Join(err)
}
