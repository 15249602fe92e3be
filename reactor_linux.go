//go:build linux

package netcore

import "golang.org/x/sys/unix"

// readWindowScale reads the kernel's current receive-window scale via
// TCP_INFO, the only portable-ish way to observe the auto-tuning decision
// the buffer-size quirk guards against.
func readWindowScale(fd int) int {
	info, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return 0
	}
	return int(info.Rcv_wscale)
}
