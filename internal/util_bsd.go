//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func applyNoSigpipe(fd int) error {
	return setBoolSockopt(fd, syscall.SOL_SOCKET, unix.SO_NOSIGPIPE, true)
}

func setKeepaliveInterval(fd int, secs int) error {
	return syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_KEEPALIVE, secs)
}
