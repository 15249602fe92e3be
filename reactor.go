package netcore

import (
	"net/netip"
	"sync"
	"syscall"

	"go.uber.org/atomic"

	"github.com/fz-systems/netcore/internal"
	"github.com/fz-systems/netcore/neterrors"
	"github.com/fz-systems/netcore/netopts"
)

// windowScaleBaseline records, once, the kernel's default receive-window
// scale observed on the first connected socket. Until it is known, attempts
// to set SO_RCVBUF are suppressed; afterwards they are suppressed whenever
// they would shrink the scale below the baseline. Platforms that don't
// expose TCP_INFO leave this at its zero value and every later check is a
// no-op (the quirk simply never applies).
var (
	windowScaleOnce     sync.Once
	windowScaleBaseline int
)

func recordWindowScaleBaseline(fd int) {
	windowScaleOnce.Do(func() {
		windowScaleBaseline = readWindowScale(fd)
	})
}

// windowScaleShrinks reports whether setting SO_RCVBUF to want on fd would
// take the window scale below the recorded baseline.
func windowScaleShrinks(fd int, want int) bool {
	if windowScaleBaseline == 0 {
		return false
	}
	// The kernel picks the smallest scale at which a 16-bit window covers
	// the receive buffer, capped at 14.
	scale := 0
	for space := want; space > 0xffff && scale < 14; space >>= 1 {
		scale++
	}
	return scale < windowScaleBaseline
}

// direction indexes the per-direction state a Reactor, limiter, or bucket
// keeps: inbound (read) and outbound (write).
type direction int8

const (
	dirRead direction = iota
	dirWrite
	dirMax
)

func directionOf(flag SocketEventFlag) direction {
	if flag == EventWrite {
		return dirWrite
	}
	return dirRead
}

// Reactor owns one OS descriptor and a dedicated worker goroutine that
// blocks in its own poller, translating OS readiness into SocketEvents
// posted through an EventLoop. One Reactor per socket: this is deliberately
// not a shared multiplexer, matching "per-socket I/O reactor threads".
type Reactor struct {
	loop   EventLoop
	source Source

	poller internal.Poller

	mu      sync.Mutex
	fd      int
	pd      internal.PollData
	waiting [dirMax]bool
	handler Handler
	closed  bool

	detach *atomic.Bool // set true when the owning socket drops the reactor

	done chan struct{}
}

// NewReactor starts the worker goroutine immediately; the reactor is usable
// (Connect/Listen/Arm*) as soon as this returns.
func NewReactor(loop EventLoop, source Source) (*Reactor, error) {
	ignoreSigpipeOnce()

	p, err := internal.NewPoller()
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		loop:   loop,
		source: source,
		poller: p,
		fd:     -1,
		detach: atomic.NewBool(false),
		done:   make(chan struct{}),
	}

	go r.worker()

	return r, nil
}

// worker is the per-socket thread: it sleeps in Poll until the OS reports
// readiness on the armed directions or Wake() is called (new arming,
// detach, or close). It never touches application buffers directly --
// dispatch happens through the callbacks Arm* register.
func (r *Reactor) worker() {
	defer close(r.done)
	for {
		if r.detach.Load() {
			return
		}

		err := r.poller.Poll(-1)
		if err != nil {
			if err == internal.ErrTimeout {
				continue
			}
			if r.poller.Closed() {
				return
			}
			continue
		}
	}
}

// SetHandler swaps the handler that future events are posted to, and
// retargets (rather than drops) any event already queued for this source.
func (r *Reactor) SetHandler(h Handler) {
	r.mu.Lock()
	old := r.handler
	r.handler = h
	source := r.source
	r.mu.Unlock()

	r.loop.FilterEvents(func(src Source, handler Handler) (Handler, bool) {
		if src == source && handler == old {
			return h, true
		}
		return handler, true
	})
}

func (r *Reactor) Handler() Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

// SetFd installs the live descriptor after connect/accept completes.
func (r *Reactor) SetFd(fd int) {
	r.mu.Lock()
	r.fd = fd
	r.pd = internal.PollData{Fd: fd}
	r.waiting = [dirMax]bool{}
	r.mu.Unlock()
}

func (r *Reactor) Fd() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fd
}

// ArmRead requests the next read-readiness notification. It is idempotent:
// calling it while already armed is a no-op, matching the edge-triggered
// two-bit latch -- the application must drive reads to EAGAIN before
// re-arming.
func (r *Reactor) ArmRead() error {
	return r.arm(dirRead, EventRead)
}

func (r *Reactor) ArmWrite() error {
	return r.arm(dirWrite, EventWrite)
}

// ArmAccept arms read-readiness on a listening socket, but the event it
// posts is "connection" (a connection is ready to accept), per the export
// table in 6.
func (r *Reactor) ArmAccept() error {
	return r.arm(dirRead, EventConnection)
}

func (r *Reactor) arm(d direction, flag SocketEventFlag) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return neterrors.ErrCancelled
	}
	if r.waiting[d] {
		r.mu.Unlock()
		return nil
	}
	r.waiting[d] = true
	fd := r.fd
	pd := &r.pd
	r.mu.Unlock()

	et := internal.ReadEvent
	if d == dirWrite {
		et = internal.WriteEvent
	}

	pd.Set(et, func(err error) {
		r.mu.Lock()
		r.waiting[d] = false
		handler := r.handler
		source := r.source
		r.mu.Unlock()

		if err != nil {
			err = neterrors.FromErrno(err)
		}
		if handler != nil {
			r.loop.PostEvent(handler, SocketEvent{Source: source, Flag: flag, Err: err})
		}
	})

	var err error
	if d == dirRead {
		err = r.poller.SetRead(fd, pd)
	} else {
		err = r.poller.SetWrite(fd, pd)
	}
	if err != nil {
		r.mu.Lock()
		r.waiting[d] = false
		r.mu.Unlock()
	}
	return err
}

// waitWritableOnce blocks the calling goroutine (the do_connect worker,
// never the application) until fd becomes writable, bypassing the
// application-facing waiting_ latch: this is do_connect's own internal use
// of the reactor's poller, not an event the handler ever sees.
func (r *Reactor) waitWritableOnce() error {
	r.mu.Lock()
	fd := r.fd
	pd := &r.pd
	r.mu.Unlock()

	done := make(chan struct{})
	pd.Set(internal.WriteEvent, func(error) { close(done) })

	if err := r.poller.SetWrite(fd, pd); err != nil {
		return err
	}
	<-done
	return nil
}

// Retrigger synthesizes a read or write event for handlers (buffered
// layers) that want another pass even though the OS hasn't reported new
// readiness. It is a no-op if the direction is already armed: a real event
// will arrive and retriggering would duplicate it.
func (r *Reactor) Retrigger(flag SocketEventFlag) {
	d := directionOf(flag)

	r.mu.Lock()
	if r.waiting[d] {
		r.mu.Unlock()
		return
	}
	handler := r.handler
	source := r.source
	r.mu.Unlock()

	if handler != nil {
		r.loop.PostEvent(handler, SocketEvent{Source: source, Flag: flag, Err: nil})
	}
}

// Wake interrupts the worker's blocked Poll so it can re-examine state
// (used after SetFd, detach, or close).
func (r *Reactor) Wake() error {
	return r.poller.Wake()
}

// Detach flags the worker to exit on its next wake (or immediately if it is
// already idle) without closing the descriptor -- the socket may want to
// keep it (e.g. handing an accepted fd to a new StreamSocket).
func (r *Reactor) Detach() {
	r.detach.Store(true)
	r.poller.Wake()
}

// Close tears the reactor down: flags and wakes the worker, closes the
// descriptor and the poller, and waits for the worker to exit.
func (r *Reactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	fd := r.fd
	r.fd = -1
	r.handler = nil
	r.mu.Unlock()

	r.detach.Store(true)
	r.poller.Wake()

	var err error
	if fd >= 0 {
		err = syscall.Close(fd)
	}
	r.poller.Close()
	<-r.done

	r.loop.FilterEvents(func(src Source, handler Handler) (Handler, bool) {
		if src == r.source {
			return handler, false
		}
		return handler, true
	})

	return err
}

// applyConnectOpts runs the option pipeline do_connect specifies: nonblock
// and close-on-exec are already true from CreateSocket; this layers on
// no-sigpipe, nodelay, keepalive, and buffer sizes, honoring the window
// scale quirk for the receive buffer.
func applyConnectOpts(fd int, opts []netopts.Option) error {
	filtered := make([]netopts.Option, 0, len(opts))
	for _, opt := range opts {
		if opt.Type() == netopts.TypeRecvBufferSize {
			want := opt.Value().(int)
			if windowScaleBaseline == 0 || windowScaleShrinks(fd, want) {
				continue
			}
		}
		filtered = append(filtered, opt)
	}
	return internal.ApplyOpts(fd, filtered...)
}

func bindIfRequested(fd int, opts []netopts.Option) error {
	opt, ok := netopts.Find(opts, netopts.TypeBindAddress)
	if !ok {
		return nil
	}
	addr, err := netip.ParseAddrPort(opt.Value().(string))
	if err != nil {
		return err
	}
	sa, err := internal.SocketAddress(addr)
	if err != nil {
		return err
	}
	return syscall.Bind(fd, sa)
}
