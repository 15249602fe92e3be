//go:build linux

package internal

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var _ ITimer = &Timer{}

// Timer is a periodic or one-shot timer backed by timerfd_create, multiplexed
// through the same Poller as the socket it times (or, for the rate-limit
// manager, through the event loop's own Poller).
type Timer struct {
	fd     int
	p      *poller
	pd     PollData
	armed  bool
	onFire func()
}

func NewTimer(p Poller) (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("timerfd_create", err)
	}

	t := &Timer{fd: fd, p: p.(*poller)}
	t.pd.Fd = fd
	return t, nil
}

func (t *Timer) Set(dur time.Duration, cb func()) error {
	if err := t.Unset(); err != nil {
		return err
	}

	ts := unix.NsecToTimespec(dur.Nanoseconds())
	spec := &unix.ItimerSpec{Interval: ts, Value: ts}
	if err := unix.TimerfdSettime(t.fd, 0, spec, nil); err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}

	t.onFire = cb
	t.armed = true
	t.pd.Set(ReadEvent, t.fire)
	return t.p.SetRead(t.fd, &t.pd)
}

func (t *Timer) fire(_ error) {
	var buf [8]byte
	syscall.Read(t.fd, buf[:])
	if !t.armed {
		return
	}
	// The poller clears read interest (edge-triggered) before invoking the
	// handler; re-arm so a periodic timerfd keeps delivering.
	t.p.SetRead(t.fd, &t.pd)
	t.onFire()
}

func (t *Timer) Unset() error {
	t.armed = false
	if err := unix.TimerfdSettime(t.fd, 0, &unix.ItimerSpec{}, nil); err != nil {
		return os.NewSyscallError("timerfd_settime", err)
	}
	return t.p.Del(t.fd, &t.pd)
}

func (t *Timer) Close() error {
	t.Unset()
	return syscall.Close(t.fd)
}
