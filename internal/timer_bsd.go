//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"math/rand" //#nosec G404 -- used only to mint a private kqueue timer identity, not for security
	"syscall"
	"time"
)

var _ ITimer = &Timer{}

// Timer is backed by EVFILT_TIMER; unlike a real file descriptor, its
// "identity" is an arbitrary integer private to this process's kqueue.
type Timer struct {
	ident int
	p     *poller
	pd    PollData
	armed bool
}

func NewTimer(p Poller) (*Timer, error) {
	t := &Timer{
		ident: rand.Int(),
		p:     p.(*poller),
	}
	return t, nil
}

func (t *Timer) Set(dur time.Duration, cb func()) error {
	if err := t.Unset(); err != nil {
		return err
	}

	t.pd.Set(ReadEvent, func(_ error) {
		if t.armed {
			cb()
		}
	})
	t.armed = true

	t.p.queue(t.ident, syscall.EVFILT_TIMER, syscall.EV_ADD|syscall.EV_ENABLE, &t.pd)
	// EVFILT_TIMER periods are expressed in the change's Data field, in ms.
	t.p.changelist[len(t.p.changelist)-1].Data = dur.Milliseconds()
	return t.p.apply()
}

func (t *Timer) Unset() error {
	if !t.armed {
		return nil
	}
	t.armed = false
	t.p.queue(t.ident, syscall.EVFILT_TIMER, syscall.EV_DELETE, &t.pd)
	return t.p.apply()
}

func (t *Timer) Close() error {
	return t.Unset()
}
