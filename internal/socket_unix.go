package internal

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// CreateSocket opens a nonblocking, close-on-exec stream or datagram socket
// for the given address family.
func CreateSocket(family int, sockType int) (int, error) {
	fd, err := syscall.Socket(family, sockType|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// SocketAddress converts a netip.AddrPort into the syscall.Sockaddr the
// connect/bind/accept family expects.
func SocketAddress(ap netip.AddrPort) (syscall.Sockaddr, error) {
	addr := ap.Addr()
	switch {
	case addr.Is4() || addr.Is4In6():
		return &syscall.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}, nil
	case addr.Is6():
		zone := addr.Zone()
		var zoneID int
		if zone != "" {
			if iface, err := net.InterfaceByName(zone); err == nil {
				zoneID = iface.Index
			}
		}
		return &syscall.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16(), ZoneId: uint32(zoneID)}, nil
	default:
		return nil, fmt.Errorf("unsupported address %s", ap)
	}
}

// FromSockaddr converts a syscall.Sockaddr obtained from accept/getpeername
// back into a netip.AddrPort.
func FromSockaddr(sa syscall.Sockaddr) (netip.AddrPort, error) {
	switch sa := sa.(type) {
	case *syscall.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), nil
	case *syscall.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if iface, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr = addr.WithZone(iface.Name)
			}
		}
		return netip.AddrPortFrom(addr, uint16(sa.Port)), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("unsupported sockaddr type %T", sa)
	}
}

// Connect issues a nonblocking connect(2). A nil error means the connection
// completed synchronously (common for loopback); a syscall.EINPROGRESS
// error means the caller must wait for writability.
func Connect(fd int, addr netip.AddrPort) error {
	sa, err := SocketAddress(addr)
	if err != nil {
		return err
	}
	return syscall.Connect(fd, sa)
}

// ConnectError inspects SO_ERROR after a connecting socket becomes writable,
// the standard way to discover whether a nonblocking connect succeeded.
func ConnectError(fd int) error {
	errno, err := syscall.GetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return syscall.Errno(errno)
	}
	return nil
}

// Listen binds fd to addr and marks it as a passive listening socket.
func Listen(fd int, addr netip.AddrPort, backlog int) error {
	sa, err := SocketAddress(addr)
	if err != nil {
		return err
	}
	if err := syscall.Bind(fd, sa); err != nil {
		return err
	}
	return syscall.Listen(fd, backlog)
}

// Accept4 accepts a connection on a nonblocking listening socket, returning a
// nonblocking, close-on-exec client fd.
func Accept4(fd int) (int, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}

	rsa, err := anyToSyscallSockaddr(sa)
	if err != nil {
		syscall.Close(nfd)
		return -1, netip.AddrPort{}, err
	}

	addr, err := FromSockaddr(rsa)
	if err != nil {
		syscall.Close(nfd)
		return -1, netip.AddrPort{}, err
	}

	return nfd, addr, nil
}

func anyToSyscallSockaddr(sa unix.Sockaddr) (syscall.Sockaddr, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &syscall.SockaddrInet4{Port: sa.Port, Addr: sa.Addr}, nil
	case *unix.SockaddrInet6:
		return &syscall.SockaddrInet6{Port: sa.Port, ZoneId: sa.ZoneId, Addr: sa.Addr}, nil
	default:
		return nil, fmt.Errorf("unsupported accepted sockaddr type %T", sa)
	}
}

// LocalAddr and PeerAddr read back the addresses the kernel assigned after
// bind/connect, the way getsockname/getpeername would.
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := syscall.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return FromSockaddr(sa)
}

func PeerAddr(fd int) (netip.AddrPort, error) {
	sa, err := syscall.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return FromSockaddr(sa)
}
