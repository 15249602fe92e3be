//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

type PollFlags int16

const (
	ReadFlags  = -PollFlags(syscall.EVFILT_READ)
	WriteFlags = -PollFlags(syscall.EVFILT_WRITE)
)

type poller struct {
	kq int

	changelist []syscall.Kevent_t
	eventlist  []syscall.Kevent_t

	waker *Pipe

	pending int64
	closed  atomic.Bool
}

func NewPoller() (Poller, error) {
	kq, err := syscall.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}

	waker, err := NewPipe()
	if err != nil {
		syscall.Close(kq)
		return nil, err
	}

	p := &poller{
		kq:         kq,
		changelist: make([]syscall.Kevent_t, 0, 8),
		eventlist:  make([]syscall.Kevent_t, 128),
		waker:      waker,
	}

	if err := p.SetRead(waker.ReadFd(), waker.PollData()); err != nil {
		waker.Close()
		syscall.Close(kq)
		return nil, err
	}

	return p, nil
}

func (p *poller) Pending() int64 {
	return atomic.LoadInt64(&p.pending)
}

func (p *poller) Wake() error {
	_, err := p.waker.Write([]byte{1})
	return err
}

func (p *poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.waker.Close()
	return syscall.Close(p.kq)
}

func (p *poller) Closed() bool {
	return p.closed.Load()
}

func (p *poller) Poll(timeoutMs int) error {
	var timeout *syscall.Timespec
	if timeoutMs >= 0 {
		ts := syscall.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}

	changelist := p.changelist
	p.changelist = p.changelist[:0]

	n, err := syscall.Kevent(p.kq, changelist, p.eventlist, timeout)
	if err != nil {
		if err == syscall.EINTR {
			return nil
		}
		return err
	}

	if n == 0 {
		if timeoutMs >= 0 {
			return ErrTimeout
		}
		return nil
	}

	for i := 0; i < n; i++ {
		ev := &p.eventlist[i]
		pd := (*PollData)(unsafe.Pointer(ev.Udata))

		if ev.Filter == syscall.EVFILT_TIMER {
			if cb := pd.Cbs[ReadEvent]; cb != nil {
				cb(nil)
			}
			continue
		}

		flags := -PollFlags(ev.Filter)

		if pd.Fd == p.waker.ReadFd() {
			var scratch [64]byte
			for {
				if _, err := p.waker.Read(scratch[:]); err != nil {
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

func (p *poller) queue(ident int, filter int16, flags uint16, udata *PollData) {
	p.changelist = append(p.changelist, syscall.Kevent_t{
		Ident:  uint64(ident),
		Filter: filter,
		Flags:  flags,
		Udata:  (*byte)(unsafe.Pointer(udata)),
	})
}

func (p *poller) apply() error {
	if len(p.changelist) == 0 {
		return nil
	}
	changelist := p.changelist
	p.changelist = nil
	_, err := syscall.Kevent(p.kq, changelist, nil, nil)
	return err
}

func (p *poller) SetRead(fd int, pd *PollData) error {
	if pd.Flags&ReadFlags == ReadFlags {
		return nil
	}
	pd.Fd = fd
	pd.Flags |= ReadFlags
	atomic.AddInt64(&p.pending, 1)
	p.queue(fd, syscall.EVFILT_READ, syscall.EV_ADD|syscall.EV_CLEAR, pd)
	return p.apply()
}

func (p *poller) SetWrite(fd int, pd *PollData) error {
	if pd.Flags&WriteFlags == WriteFlags {
		return nil
	}
	pd.Fd = fd
	pd.Flags |= WriteFlags
	atomic.AddInt64(&p.pending, 1)
	p.queue(fd, syscall.EVFILT_WRITE, syscall.EV_ADD|syscall.EV_CLEAR, pd)
	return p.apply()
}

func (p *poller) DelRead(fd int, pd *PollData) error {
	if pd.Flags&ReadFlags != ReadFlags {
		return nil
	}
	pd.Flags &^= ReadFlags
	atomic.AddInt64(&p.pending, -1)
	p.queue(fd, syscall.EVFILT_READ, syscall.EV_DELETE, pd)
	return p.apply()
}

func (p *poller) DelWrite(fd int, pd *PollData) error {
	if pd.Flags&WriteFlags != WriteFlags {
		return nil
	}
	pd.Flags &^= WriteFlags
	atomic.AddInt64(&p.pending, -1)
	p.queue(fd, syscall.EVFILT_WRITE, syscall.EV_DELETE, pd)
	return p.apply()
}

func (p *poller) Del(fd int, pd *PollData) error {
	if err := p.DelRead(fd, pd); err != nil {
		return err
	}
	return p.DelWrite(fd, pd)
}
