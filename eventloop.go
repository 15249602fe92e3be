package netcore

import (
	"sync"
	"time"

	"github.com/fz-systems/netcore/internal"
)

// TimerID names a timer registered with an EventLoop, returned by AddTimer
// and consumed by StopTimer.
type TimerID uint64

// EventLoop is the external collaborator the reactor and the rate-limit
// manager both post work onto: it owns the application's single thread of
// delivery, schedules timers, and lets a source retarget or drop events
// still queued for a handler that is about to change.
type EventLoop interface {
	AddTimer(interval time.Duration, oneShot bool, cb func()) (TimerID, error)
	StopTimer(id TimerID) error

	// FilterEvents walks every pending posted event, calling decide with its
	// source and current handler. A false return drops the event; a true
	// return keeps it, retargeted to the returned Handler (the same handler
	// if unchanged). Used by handler rebinding and by socket close to
	// retarget or drop events targeted at a source.
	FilterEvents(decide func(source Source, handler Handler) (Handler, bool))

	PostEvent(handler Handler, ev SocketEvent)
	PostHostAddressEvent(handler Handler, ev HostAddressEvent)

	// Run blocks, dispatching posted events and firing timers, until Stop
	// is called.
	Run() error

	// RunOne dispatches at most one batch of ready work and returns.
	RunOne() error

	Stop()
}

type queuedEvent struct {
	handler     Handler
	source      Source
	socketEvent *SocketEvent
	hostEvent   *HostAddressEvent
}

type loop struct {
	poller internal.Poller

	mu      sync.Mutex
	queue   []queuedEvent
	timers  map[TimerID]*internal.Timer
	nextID  TimerID
	stopped bool
}

// NewEventLoop creates a reference EventLoop implementation backed by the
// same epoll/kqueue plumbing a socket's reactor uses, so timer callbacks and
// posted events are delivered from one dedicated goroutine.
func NewEventLoop() (EventLoop, error) {
	p, err := internal.NewPoller()
	if err != nil {
		return nil, err
	}
	return &loop{
		poller: p,
		timers: make(map[TimerID]*internal.Timer),
	}, nil
}

func (l *loop) AddTimer(interval time.Duration, oneShot bool, cb func()) (TimerID, error) {
	t, err := internal.NewTimer(l.poller)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.timers[id] = t
	l.mu.Unlock()

	fire := cb
	if oneShot {
		fire = func() {
			cb()
			l.StopTimer(id)
		}
	}

	if err := t.Set(interval, fire); err != nil {
		l.mu.Lock()
		delete(l.timers, id)
		l.mu.Unlock()
		return 0, err
	}

	return id, nil
}

func (l *loop) StopTimer(id TimerID) error {
	l.mu.Lock()
	t, ok := l.timers[id]
	if ok {
		delete(l.timers, id)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}
	return t.Close()
}

func (l *loop) FilterEvents(decide func(Source, Handler) (Handler, bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.queue[:0]
	for _, qe := range l.queue {
		if newHandler, ok := decide(qe.source, qe.handler); ok {
			qe.handler = newHandler
			kept = append(kept, qe)
		}
	}
	l.queue = kept
}

func (l *loop) PostEvent(handler Handler, ev SocketEvent) {
	l.mu.Lock()
	l.queue = append(l.queue, queuedEvent{handler: handler, source: ev.Source, socketEvent: &ev})
	l.mu.Unlock()
	l.poller.Wake()
}

func (l *loop) PostHostAddressEvent(handler Handler, ev HostAddressEvent) {
	l.mu.Lock()
	l.queue = append(l.queue, queuedEvent{handler: handler, source: ev.Source, hostEvent: &ev})
	l.mu.Unlock()
	l.poller.Wake()
}

func (l *loop) drain() {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, qe := range pending {
		if qe.handler == nil {
			continue
		}
		if qe.socketEvent != nil {
			qe.handler.OnSocketEvent(*qe.socketEvent)
		}
		if qe.hostEvent != nil {
			qe.handler.OnHostAddressEvent(*qe.hostEvent)
		}
	}
}

func (l *loop) RunOne() error {
	err := l.poller.Poll(100)
	l.drain()
	if err == internal.ErrTimeout {
		return nil
	}
	return err
}

func (l *loop) Run() error {
	for {
		l.mu.Lock()
		stopped := l.stopped
		l.mu.Unlock()
		if stopped {
			return nil
		}

		if err := l.poller.Poll(-1); err != nil && err != internal.ErrTimeout {
			if l.poller.Closed() {
				return nil
			}
			return err
		}
		l.drain()
	}
}

func (l *loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.poller.Wake()
}
