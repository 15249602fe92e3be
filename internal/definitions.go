package internal

import "time"

// EventType identifies one direction of readiness a Poller can wait on.
type EventType int8

const (
	ReadEvent EventType = iota
	WriteEvent
	MaxEvent
)

// Handler is invoked by the Poller when the event it was registered for
// fires. The pollers in this package always pass a nil error.
type Handler func(error)

// PollData is embedded by anything the Poller multiplexes: one instance per
// file descriptor, carrying the platform-opaque identity the edge-triggered
// backends (epoll_data/kevent udata) thread back through the kernel.
type PollData struct {
	Fd    int
	Flags PollFlags
	Cbs   [MaxEvent]Handler
}

func (pd *PollData) Set(et EventType, h Handler) {
	pd.Cbs[et] = h
}

// ITimer is a single one-shot or periodic timer multiplexed by a Poller.
type ITimer interface {
	Set(time.Duration, func()) error
	Unset() error
	Close() error
}

// Poller is the per-reactor multiplexer: one OS-level polling primitive
// (epoll/kqueue) plus a wakeup descriptor so another goroutine can interrupt
// a blocked Poll call. Every socket Reactor owns exactly one Poller -- this
// is the per-socket worker's multiplexer, not a shared event loop.
type Poller interface {
	// Poll blocks for at most timeoutMs milliseconds (indefinitely if < 0)
	// waiting for a registered event or an explicit Wake. Returns ErrTimeout
	// if the deadline elapsed with nothing ready.
	Poll(timeoutMs int) error

	Pending() int64

	SetRead(fd int, pd *PollData) error
	SetWrite(fd int, pd *PollData) error
	DelRead(fd int, pd *PollData) error
	DelWrite(fd int, pd *PollData) error
	Del(fd int, pd *PollData) error

	// Wake interrupts a blocked Poll call from another goroutine. Used by
	// the reactor's wake() to let the worker re-examine its waiting mask
	// without polling forever on a socket with nothing currently armed.
	Wake() error

	Close() error
	Closed() bool
}
