//go:build linux

package internal

import (
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

type PollFlags uint32

const (
	ReadFlags  = PollFlags(syscall.EPOLLIN)
	WriteFlags = PollFlags(syscall.EPOLLOUT)
)

type epollEvent struct {
	flags uint32
	data  [8]byte
}

func makeEpollEvent(flags PollFlags, pd *PollData) epollEvent {
	ev := epollEvent{flags: uint32(flags)}
	*(**PollData)(unsafe.Pointer(&ev.data)) = pd
	return ev
}

// poller is an epoll-backed Poller. One instance belongs to exactly one
// Reactor (or to the reference EventLoop); it is never shared across
// sockets.
type poller struct {
	fd int

	events []epollEvent

	waker *EventFd

	pending int64

	closed atomic.Bool

	wakerScratch [8]byte
}

func NewPoller() (Poller, error) {
	epollFd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	waker, err := NewEventFd(true)
	if err != nil {
		syscall.Close(epollFd)
		return nil, err
	}

	p := &poller{
		fd:     epollFd,
		waker:  waker,
		events: make([]epollEvent, 128),
	}

	if err := p.add(waker.Fd(), makeEpollEvent(ReadFlags, waker.PollData())); err != nil {
		waker.Close()
		syscall.Close(epollFd)
		return nil, err
	}

	return p, nil
}

func (p *poller) Pending() int64 {
	return atomic.LoadInt64(&p.pending)
}

func (p *poller) Wake() error {
	_, err := p.waker.Write(1)
	return err
}

func (p *poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.waker.Close()
	return syscall.Close(p.fd)
}

func (p *poller) Closed() bool {
	return p.closed.Load()
}

func (p *poller) Poll(timeoutMs int) error {
	n, _, errno := syscall.RawSyscall6(
		syscall.SYS_EPOLL_WAIT,
		uintptr(p.fd),
		uintptr(unsafe.Pointer(&p.events[0])),
		uintptr(len(p.events)),
		uintptr(timeoutMs),
		0, 0,
	)
	if errno != 0 {
		if errno == syscall.EINTR {
			return nil
		}
		return errno
	}

	if n == 0 {
		if timeoutMs >= 0 {
			return ErrTimeout
		}
		return nil
	}

	for i := 0; i < int(n); i++ {
		ev := &p.events[i]
		flags := PollFlags(ev.flags)
		pd := *(**PollData)(unsafe.Pointer(&ev.data))

		if pd.Fd == p.waker.Fd() {
			for {
				if _, err := p.waker.Read(p.wakerScratch[:]); err != nil {
					break
				}
			}
			continue
		}

		if flags&pd.Flags&ReadFlags == ReadFlags {
			p.DelRead(pd.Fd, pd)
			if cb := pd.Cbs[ReadEvent]; cb != nil {
				cb(nil)
			}
		}

		if flags&pd.Flags&WriteFlags == WriteFlags {
			p.DelWrite(pd.Fd, pd)
			if cb := pd.Cbs[WriteEvent]; cb != nil {
				cb(nil)
			}
		}
	}

	return nil
}

func (p *poller) SetRead(fd int, pd *PollData) error {
	return p.setRW(fd, pd, ReadFlags)
}

func (p *poller) SetWrite(fd int, pd *PollData) error {
	return p.setRW(fd, pd, WriteFlags)
}

func (p *poller) setRW(fd int, pd *PollData, flag PollFlags) error {
	if pd.Flags&flag == flag {
		return nil
	}

	atomic.AddInt64(&p.pending, 1)
	old := pd.Flags
	pd.Flags |= flag

	if old == 0 {
		return p.add(fd, makeEpollEvent(pd.Flags, pd))
	}
	return p.modify(fd, makeEpollEvent(pd.Flags, pd))
}

func (p *poller) add(fd int, ev epollEvent) error {
	_, _, errno := syscall.RawSyscall6(
		syscall.SYS_EPOLL_CTL,
		uintptr(p.fd), uintptr(syscall.EPOLL_CTL_ADD), uintptr(fd),
		uintptr(unsafe.Pointer(&ev)), 0, 0,
	)
	if errno != 0 {
		return os.NewSyscallError("epoll_ctl_add", errno)
	}
	return nil
}

func (p *poller) modify(fd int, ev epollEvent) error {
	_, _, errno := syscall.RawSyscall6(
		syscall.SYS_EPOLL_CTL,
		uintptr(p.fd), uintptr(syscall.EPOLL_CTL_MOD), uintptr(fd),
		uintptr(unsafe.Pointer(&ev)), 0, 0,
	)
	if errno != 0 {
		return os.NewSyscallError("epoll_ctl_mod", errno)
	}
	return nil
}

func (p *poller) del(fd int) error {
	_, _, errno := syscall.RawSyscall6(
		syscall.SYS_EPOLL_CTL,
		uintptr(p.fd), uintptr(syscall.EPOLL_CTL_DEL), uintptr(fd),
		0, 0, 0,
	)
	if errno != 0 {
		return os.NewSyscallError("epoll_ctl_del", errno)
	}
	return nil
}

func (p *poller) Del(fd int, pd *PollData) error {
	if err := p.DelRead(fd, pd); err != nil {
		return err
	}
	return p.DelWrite(fd, pd)
}

func (p *poller) DelRead(fd int, pd *PollData) error {
	if pd.Flags&ReadFlags != ReadFlags {
		return nil
	}
	atomic.AddInt64(&p.pending, -1)
	pd.Flags &^= ReadFlags
	if pd.Flags != 0 {
		return p.modify(fd, makeEpollEvent(pd.Flags, pd))
	}
	return p.del(fd)
}

func (p *poller) DelWrite(fd int, pd *PollData) error {
	if pd.Flags&WriteFlags != WriteFlags {
		return nil
	}
	atomic.AddInt64(&p.pending, -1)
	pd.Flags &^= WriteFlags
	if pd.Flags != 0 {
		return p.modify(fd, makeEpollEvent(pd.Flags, pd))
	}
	return p.del(fd)
}
