// Package neterrors defines the sentinel errors the reactor and socket
// layers return, and classifies raw POSIX errno values into them so callers
// never have to switch on syscall.Errno themselves.
package neterrors

import (
	"errors"
	"syscall"
)

var (
	ErrWouldBlock             = errors.New("operation would block")
	ErrCancelled              = errors.New("operation cancelled")
	ErrTimeout                = errors.New("operation timed out")
	ErrNeedMore               = errors.New("need to read/write more bytes")
	ErrNoBufferSpaceAvailable = errors.New("no buffer space available")
	ErrConnRefused            = errors.New("connection refused")
	ErrConnReset              = errors.New("connection reset by peer")
	ErrConnAborted            = errors.New("connection aborted")
	ErrNotConnected           = errors.New("socket is not connected")
	ErrAlreadyConnected       = errors.New("socket is already connected")
	ErrHostUnreachable        = errors.New("host unreachable")
	ErrNetworkUnreachable     = errors.New("network unreachable")
	ErrAddressInUse           = errors.New("address already in use")
	ErrInvalidAddress         = errors.New("invalid address")
	ErrEOF                    = errors.New("end of file")
	ErrBrokenPipe             = errors.New("broken pipe")
	ErrInProgress             = errors.New("operation in progress")
)

// FromErrno maps a raw POSIX errno surfaced by a syscall into one of the
// sentinels above. Errnos with no dedicated sentinel are returned unchanged.
func FromErrno(err error) error {
	errno, ok := err.(syscall.Errno)
	if !ok {
		return err
	}

	switch errno {
	case syscall.EAGAIN:
		return ErrWouldBlock
	case syscall.EINTR:
		return ErrCancelled
	case syscall.ETIMEDOUT:
		return ErrTimeout
	case syscall.ECONNREFUSED:
		return ErrConnRefused
	case syscall.ECONNRESET:
		return ErrConnReset
	case syscall.ECONNABORTED:
		return ErrConnAborted
	case syscall.ENOTCONN:
		return ErrNotConnected
	case syscall.EISCONN:
		return ErrAlreadyConnected
	case syscall.EHOSTUNREACH:
		return ErrHostUnreachable
	case syscall.ENETUNREACH:
		return ErrNetworkUnreachable
	case syscall.EADDRINUSE:
		return ErrAddressInUse
	case syscall.EPIPE:
		return ErrBrokenPipe
	case syscall.EINPROGRESS, syscall.EALREADY:
		return ErrInProgress
	case syscall.ENOBUFS, syscall.ENOMEM:
		return ErrNoBufferSpaceAvailable
	default:
		return err
	}
}

// IsWouldBlock reports whether err is or wraps ErrWouldBlock.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// IsFatal reports whether err should tear the socket's reactor down rather
// than be retried.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrWouldBlock), errors.Is(err, ErrTimeout), errors.Is(err, ErrNeedMore):
		return false
	default:
		return true
	}
}
