package internal

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/fz-systems/netcore/netopts"
	"golang.org/x/sys/unix"
)

var sigpipeOnce sync.Once

// IgnoreSigpipe masks SIGPIPE process-wide, once. Go already does this for
// the Go-managed fds it owns, but sockets obtained through raw syscalls here
// bypass that bookkeeping on some platforms, so the reactor calls this
// before the first socket is created.
func IgnoreSigpipe() {
	sigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

// ApplyOpts configures a raw socket fd according to opts, applying them in
// the order given and stopping at the first error. Bind is not applied
// here: callers bind themselves once the other options are in place.
func ApplyOpts(fd int, opts ...netopts.Option) error {
	for _, opt := range opts {
		var err error
		switch opt.Type() {
		case netopts.TypeNonblocking:
			err = syscall.SetNonblock(fd, opt.Value().(bool))
		case netopts.TypeCloseOnExec:
			flag := 0
			if opt.Value().(bool) {
				flag = unix.FD_CLOEXEC
			}
			_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flag)
		case netopts.TypeReuseAddr:
			err = setBoolSockopt(fd, syscall.SOL_SOCKET, unix.SO_REUSEADDR, opt.Value().(bool))
		case netopts.TypeReusePort:
			err = setBoolSockopt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, opt.Value().(bool))
		case netopts.TypeNoDelay:
			err = setBoolSockopt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, opt.Value().(bool))
		case netopts.TypeKeepalive:
			err = applyKeepalive(fd, opt.Value().(interface{ Seconds() float64 }))
		case netopts.TypeRecvBufferSize:
			err = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, opt.Value().(int))
		case netopts.TypeSendBufferSize:
			err = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, opt.Value().(int))
		case netopts.TypeNoSigpipe:
			if opt.Value().(bool) {
				err = applyNoSigpipe(fd)
			}
		case netopts.TypeBindAddress:
			// handled by the caller: bind needs the parsed address, not
			// just the opt list, since it must run after the others.
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func setBoolSockopt(fd, level, name int, v bool) error {
	x := 0
	if v {
		x = 1
	}
	return syscall.SetsockoptInt(fd, level, name, x)
}

func applyKeepalive(fd int, d interface{ Seconds() float64 }) error {
	if err := setBoolSockopt(fd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, true); err != nil {
		return err
	}
	secs := int(d.Seconds())
	if secs <= 0 {
		secs = 1
	}
	return setKeepaliveInterval(fd, secs)
}
