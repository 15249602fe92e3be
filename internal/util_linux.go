//go:build linux

package internal

import "syscall"

// Linux has no SO_NOSIGPIPE; Go already arranges for write(2) on a closed
// peer to return EPIPE instead of raising the process signal for any fd not
// 0/1/2, so there is nothing additional to set here.
func applyNoSigpipe(fd int) error {
	return nil
}

func setKeepaliveInterval(fd int, secs int) error {
	return syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_KEEPIDLE, secs)
}
