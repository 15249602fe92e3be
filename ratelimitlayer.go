package netcore

import (
	"github.com/fz-systems/netcore/neterrors"
	"github.com/fz-systems/netcore/ratelimit"
)

var _ SocketLayer = (*RateLimitedLayer)(nil)

// RateLimitedLayer is a layer that is also a bucket: it queries its
// bucket's available budget before every read/write, truncates the
// transfer to that budget, and consumes the bytes actually moved.
type RateLimitedLayer struct {
	loop    EventLoop
	next    SocketLayer
	bucket  *ratelimit.Bucket
	handler Handler
}

// NewRateLimitedLayer wraps next with a bucket attached to limiter. The
// bucket's wakeup callback posts a synthetic read/write event once refilled
// tokens make progress possible again.
func NewRateLimitedLayer(loop EventLoop, next SocketLayer, limiter *ratelimit.Limiter) *RateLimitedLayer {
	rl := &RateLimitedLayer{loop: loop, next: next}
	rl.bucket = ratelimit.NewBucket(rl.onWakeup)
	limiter.AddChild(rl.bucket)
	return rl
}

func (rl *RateLimitedLayer) RawFd() int { return rl.next.RawFd() }

func (rl *RateLimitedLayer) NextLayer() SocketLayer { return rl.next }

func (rl *RateLimitedLayer) GetState() SocketState { return rl.next.GetState() }

func (rl *RateLimitedLayer) Connect(host, service string) error { return rl.next.Connect(host, service) }

func (rl *RateLimitedLayer) Shutdown() error     { return rl.next.Shutdown() }
func (rl *RateLimitedLayer) ShutdownRead() error { return rl.next.ShutdownRead() }

// SetEventHandler installs h as this layer's handler, retargets events this
// layer already queued to h, and rebinds the underlying layer's handler to a
// filter that gates read/write events on bucket availability; connection
// events pass straight through.
func (rl *RateLimitedLayer) SetEventHandler(h Handler) {
	rl.handler = h
	rl.loop.FilterEvents(func(src Source, handler Handler) (Handler, bool) {
		if src == Source(rl) {
			return h, true
		}
		return handler, true
	})
	rl.next.SetEventHandler(HandlerFunc{
		Socket:      rl.onUnderlyingEvent,
		HostAddress: rl.onUnderlyingHostAddress,
	})
}

func (rl *RateLimitedLayer) onUnderlyingHostAddress(ev HostAddressEvent) {
	if rl.handler != nil {
		rl.loop.PostHostAddressEvent(rl.handler, HostAddressEvent{Source: rl, Text: ev.Text})
	}
}

func (rl *RateLimitedLayer) onUnderlyingEvent(ev SocketEvent) {
	if rl.handler == nil {
		return
	}

	switch ev.Flag {
	case EventConnection, EventConnectionNext:
		rl.loop.PostEvent(rl.handler, SocketEvent{Source: rl, Flag: ev.Flag, Err: ev.Err})
	case EventRead:
		if rl.bucket.Available(ratelimit.Inbound) > 0 {
			rl.loop.PostEvent(rl.handler, SocketEvent{Source: rl, Flag: EventRead, Err: ev.Err})
		}
	case EventWrite:
		if rl.bucket.Available(ratelimit.Outbound) > 0 {
			rl.loop.PostEvent(rl.handler, SocketEvent{Source: rl, Flag: EventWrite, Err: ev.Err})
		}
	}
}

// onWakeup is the bucket's refill callback: post the matching event now
// that tokens are available, even though the OS hasn't reported anything
// new -- this is the layer's own retrigger, from the underlying socket's
// point of view.
func (rl *RateLimitedLayer) onWakeup(d ratelimit.Direction) {
	if rl.handler == nil {
		return
	}
	flag := EventRead
	if d == ratelimit.Outbound {
		flag = EventWrite
	}
	rl.loop.PostEvent(rl.handler, SocketEvent{Source: rl, Flag: flag})
}

func (rl *RateLimitedLayer) Read(b []byte) (int, error) {
	avail := rl.bucket.Available(ratelimit.Inbound)
	if avail == 0 {
		return 0, neterrors.ErrWouldBlock
	}

	n := len(b)
	if uint64(n) > avail {
		n = int(avail)
	}

	read, err := rl.next.Read(b[:n])
	if read > 0 {
		rl.bucket.Consume(ratelimit.Inbound, uint64(read))
	}
	return read, err
}

func (rl *RateLimitedLayer) Write(b []byte) (int, error) {
	avail := rl.bucket.Available(ratelimit.Outbound)
	if avail == 0 {
		return 0, neterrors.ErrWouldBlock
	}

	n := len(b)
	if uint64(n) > avail {
		n = int(avail)
	}

	written, err := rl.next.Write(b[:n])
	if written > 0 {
		rl.bucket.Consume(ratelimit.Outbound, uint64(written))
	}
	return written, err
}

// Detach removes the layer's bucket from its limiter, e.g. on Close.
func (rl *RateLimitedLayer) Detach() {
	rl.bucket.Detach()
}
