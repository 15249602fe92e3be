package netcore

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"syscall"

	"github.com/fz-systems/netcore/internal"
	"github.com/fz-systems/netcore/neterrors"
	"github.com/fz-systems/netcore/netopts"
)

const listenBacklog = 64

// ListenSocket is the passive half of the socket pair: it resolves a bind
// address, binds and listens, and arms "connection" readiness so the
// reactor posts an event each time accept() would succeed.
type ListenSocket struct {
	loop    EventLoop
	reactor *Reactor
	opts    []netopts.Option

	mu    sync.Mutex
	state ListenState
}

// Listen resolves host:port with passive+numeric hints, tries each
// candidate address in order, and listens on the first that binds
// successfully.
func Listen(loop EventLoop, host string, port uint16, opts ...netopts.Option) (*ListenSocket, error) {
	ls := &ListenSocket{loop: loop, opts: opts}

	r, err := NewReactor(loop, ls)
	if err != nil {
		return nil, err
	}
	ls.reactor = r

	candidates, err := resolve(context.Background(), host, strconv.Itoa(int(port)))
	if err != nil || len(candidates) == 0 {
		ls.state = ListenStateFailed
		return nil, fmt.Errorf("netcore: resolve listen address %s:%d: %w", host, port, err)
	}

	var lastErr error
	for _, addr := range candidates {
		family := syscall.AF_INET
		if familyOf(addr.Addr()) == FamilyIPv6 {
			family = syscall.AF_INET6
		}

		fd, err := internal.CreateSocket(family, syscall.SOCK_STREAM)
		if err != nil {
			lastErr = err
			continue
		}

		if err := internal.ApplyOpts(fd, opts...); err != nil {
			syscall.Close(fd)
			lastErr = err
			continue
		}

		if err := internal.Listen(fd, addr, listenBacklog); err != nil {
			syscall.Close(fd)
			lastErr = err
			continue
		}

		r.SetFd(fd)
		ls.state = ListenStateListening
		r.ArmAccept()
		Log.Debug().Str("addr", textualizeAddr(addr, true)).Msg("listening")
		return ls, nil
	}

	ls.state = ListenStateFailed
	return nil, fmt.Errorf("netcore: listen %s:%d: %w", host, port, neterrors.FromErrno(lastErr))
}

func (ls *ListenSocket) RawFd() int { return ls.reactor.Fd() }

func (ls *ListenSocket) GetListenState() ListenState {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

func (ls *ListenSocket) SetEventHandler(h Handler) {
	ls.reactor.SetHandler(h)
}

// Accept pulls the next completed connection off the listen backlog,
// wrapped in a StreamSocket already in state connected with both
// directions armed. If the platform exposes atomic close-on-exec accept
// (accept4), it is used; CreateSocket/Accept4 already request it.
func (ls *ListenSocket) Accept() (*StreamSocket, error) {
	fd, _, err := internal.Accept4(ls.reactor.Fd())
	if err != nil {
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			ls.reactor.ArmAccept()
			return nil, neterrors.ErrWouldBlock
		}
		return nil, neterrors.FromErrno(err)
	}

	sock, err := adoptConnected(ls.loop, fd, ls.opts)
	if err != nil {
		return nil, err
	}
	sock.reactor.ArmRead()
	sock.reactor.ArmWrite()
	return sock, nil
}

func (ls *ListenSocket) Addr() (netip.AddrPort, error) {
	return internal.LocalAddr(ls.reactor.Fd())
}

func (ls *ListenSocket) Close() error {
	ls.mu.Lock()
	ls.state = ListenStateNone
	ls.mu.Unlock()
	return ls.reactor.Close()
}
