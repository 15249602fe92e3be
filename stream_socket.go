package netcore

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"syscall"

	"github.com/fz-systems/netcore/internal"
	"github.com/fz-systems/netcore/neterrors"
	"github.com/fz-systems/netcore/netopts"
)

var _ SocketLayer = (*StreamSocket)(nil)

// StreamSocket is the bottom of the layer chain: the raw non-blocking TCP
// connection, driven by one Reactor.
type StreamSocket struct {
	loop    EventLoop
	reactor *Reactor
	opts    []netopts.Option

	mu    sync.Mutex
	state SocketState
}

// NewStreamSocket allocates an unconnected socket in state none. opts are
// applied to every descriptor the socket later creates, whether by Connect
// or by being handed one from a ListenSocket's accept.
func NewStreamSocket(loop EventLoop, opts ...netopts.Option) (*StreamSocket, error) {
	s := &StreamSocket{loop: loop, opts: opts, state: StateNone}
	r, err := NewReactor(loop, s)
	if err != nil {
		return nil, err
	}
	s.reactor = r
	return s, nil
}

// adoptConnected wraps an already-connected descriptor (from accept) in a
// StreamSocket in state connected; the caller arms its directions.
func adoptConnected(loop EventLoop, fd int, opts []netopts.Option) (*StreamSocket, error) {
	s := &StreamSocket{loop: loop, opts: opts, state: StateConnected}
	r, err := NewReactor(loop, s)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	s.reactor = r
	r.SetFd(fd)
	recordWindowScaleBaseline(fd)
	return s, nil
}

func (s *StreamSocket) RawFd() int { return s.reactor.Fd() }

func (s *StreamSocket) GetState() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StreamSocket) setState(st SocketState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *StreamSocket) SetEventHandler(h Handler) {
	s.reactor.SetHandler(h)
}

func (s *StreamSocket) NextLayer() SocketLayer { return nil }

// Connect validates host/port, transitions to connecting, and hands off to
// the reactor's do_connect protocol on a dedicated goroutine -- the
// "per-socket worker" that may block in name resolution without stalling
// anything else.
func (s *StreamSocket) Connect(host, service string) error {
	if host == "" || service == "" {
		return fmt.Errorf("netcore: host and service must be non-empty")
	}

	s.mu.Lock()
	if s.state != StateNone {
		s.mu.Unlock()
		return fmt.Errorf("netcore: connect called in state %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	go s.doConnect(host, service)
	return nil
}

func (s *StreamSocket) doConnect(host, service string) {
	candidates, err := resolve(context.Background(), host, service)
	if err != nil || len(candidates) == 0 {
		s.finishConnect(neterrors.ErrHostUnreachable)
		return
	}

	for i, addr := range candidates {
		handler := s.reactor.Handler()
		s.loop.PostHostAddressEvent(handler, HostAddressEvent{
			Source: s,
			Text:   textualizeAddr(addr, false),
		})

		err := s.tryConnect(addr)
		if err == nil {
			s.finishConnect(nil)
			s.reactor.ArmRead()
			s.reactor.ArmWrite()
			return
		}

		last := i == len(candidates)-1
		if last {
			s.finishConnect(neterrors.ErrConnAborted)
			return
		}

		if handler != nil {
			s.loop.PostEvent(handler, SocketEvent{Source: s, Flag: EventConnectionNext, Err: neterrors.FromErrno(err)})
		}
	}
}

func (s *StreamSocket) tryConnect(addr netip.AddrPort) error {
	family := syscall.AF_INET
	if familyOf(addr.Addr()) == FamilyIPv6 {
		family = syscall.AF_INET6
	}

	fd, err := internal.CreateSocket(family, syscall.SOCK_STREAM)
	if err != nil {
		return err
	}

	if err := applyConnectOpts(fd, s.opts); err != nil {
		syscall.Close(fd)
		return err
	}
	if err := bindIfRequested(fd, s.opts); err != nil {
		syscall.Close(fd)
		return err
	}

	err = internal.Connect(fd, addr)
	if err != nil && err != syscall.EINPROGRESS && err != syscall.EALREADY {
		syscall.Close(fd)
		return err
	}

	s.reactor.SetFd(fd)

	if err == syscall.EINPROGRESS || err == syscall.EALREADY {
		if werr := s.reactor.waitWritableOnce(); werr != nil {
			syscall.Close(fd)
			s.reactor.SetFd(-1)
			return werr
		}
		if cerr := internal.ConnectError(fd); cerr != nil {
			syscall.Close(fd)
			s.reactor.SetFd(-1)
			return cerr
		}
	}

	recordWindowScaleBaseline(fd)
	return nil
}

func (s *StreamSocket) finishConnect(err error) {
	handler := s.reactor.Handler()

	if err != nil {
		s.setState(StateFailed)
		Log.Debug().Err(err).Msg("connect failed on all candidates")
	} else {
		s.setState(StateConnected)
	}

	if handler != nil {
		s.loop.PostEvent(handler, SocketEvent{Source: s, Flag: EventConnection, Err: err})
	}
}

func (s *StreamSocket) Read(b []byte) (int, error) {
	n, err := syscall.Read(s.reactor.Fd(), b)
	if err != nil {
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			s.reactor.ArmRead()
			return 0, neterrors.ErrWouldBlock
		}
		return 0, neterrors.FromErrno(err)
	}
	if n == 0 {
		return 0, neterrors.ErrEOF
	}
	return n, nil
}

func (s *StreamSocket) Write(b []byte) (int, error) {
	n, err := syscall.Write(s.reactor.Fd(), b)
	if err != nil {
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			s.reactor.ArmWrite()
			return 0, neterrors.ErrWouldBlock
		}
		return 0, neterrors.FromErrno(err)
	}
	return n, nil
}

// Shutdown half-closes the write side. On success, connected transitions to
// shut_down and future write events are disabled, but reads continue to be
// permitted until EOF.
func (s *StreamSocket) Shutdown() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return fmt.Errorf("netcore: shutdown called in state %s", s.state)
	}
	s.mu.Unlock()

	if err := syscall.Shutdown(s.reactor.Fd(), syscall.SHUT_WR); err != nil {
		return neterrors.FromErrno(err)
	}

	r := s.reactor
	r.mu.Lock()
	r.waiting[dirWrite] = false
	fd, pd := r.fd, &r.pd
	r.mu.Unlock()
	r.poller.DelWrite(fd, pd)

	s.setState(StateShutDown)
	return nil
}

func (s *StreamSocket) ShutdownRead() error {
	return syscall.Shutdown(s.reactor.Fd(), syscall.SHUT_RD)
}

// Close tears down the reactor and marks the socket closed. Safe to call
// from any goroutine, including while the worker is blocked in Poll.
func (s *StreamSocket) Close() error {
	s.setState(StateClosed)
	return s.reactor.Close()
}

func (s *StreamSocket) LocalAddr() (netip.AddrPort, error) {
	return internal.LocalAddr(s.reactor.Fd())
}

func (s *StreamSocket) PeerAddr() (netip.AddrPort, error) {
	return internal.PeerAddr(s.reactor.Fd())
}

// Retrigger lets a buffering layer above ask for a
// synthetic read/write event without the OS actually reporting new
// readiness -- see scenario (f).
func (s *StreamSocket) Retrigger(flag SocketEventFlag) {
	s.reactor.Retrigger(flag)
}
