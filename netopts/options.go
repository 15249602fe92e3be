package netopts

import "time"

type boolOption struct {
	t OptionType
	v bool
}

func (o boolOption) Type() OptionType  { return o.t }
func (o boolOption) Value() interface{} { return o.v }

type intOption struct {
	t OptionType
	v int
}

func (o intOption) Type() OptionType   { return o.t }
func (o intOption) Value() interface{} { return o.v }

type durationOption struct {
	t OptionType
	v time.Duration
}

func (o durationOption) Type() OptionType   { return o.t }
func (o durationOption) Value() interface{} { return o.v }

type stringOption struct {
	t OptionType
	v string
}

func (o stringOption) Type() OptionType   { return o.t }
func (o stringOption) Value() interface{} { return o.v }

// Nonblocking puts the underlying file descriptor in O_NONBLOCK mode. Every
// socket the reactor manages needs this; it defaults on in CreateSocket and
// is exposed here mostly so tests can assert on it.
func Nonblocking(v bool) Option { return boolOption{TypeNonblocking, v} }

// CloseOnExec sets FD_CLOEXEC so forked children don't inherit the socket.
func CloseOnExec(v bool) Option { return boolOption{TypeCloseOnExec, v} }

// ReuseAddr sets SO_REUSEADDR, letting a listener rebind a port still in
// TIME_WAIT.
func ReuseAddr(v bool) Option { return boolOption{TypeReuseAddr, v} }

// ReusePort sets SO_REUSEPORT where the platform supports it, allowing
// multiple listeners to share one port for load distribution.
func ReusePort(v bool) Option { return boolOption{TypeReusePort, v} }

// NoDelay sets TCP_NODELAY, disabling Nagle's algorithm.
func NoDelay(v bool) Option { return boolOption{TypeNoDelay, v} }

// NoSigpipe arranges for writes to a closed peer to surface as an error
// instead of raising SIGPIPE. On BSD/Darwin it sets SO_NOSIGPIPE; on Linux
// nothing is set per socket (the process-wide SIGPIPE mask covers it).
func NoSigpipe(v bool) Option { return boolOption{TypeNoSigpipe, v} }

// Keepalive enables SO_KEEPALIVE and sets the idle interval before the first
// probe is sent.
func Keepalive(d time.Duration) Option { return durationOption{TypeKeepalive, d} }

// RecvBufferSize sets SO_RCVBUF.
func RecvBufferSize(n int) Option { return intOption{TypeRecvBufferSize, n} }

// SendBufferSize sets SO_SNDBUF.
func SendBufferSize(n int) Option { return intOption{TypeSendBufferSize, n} }

// Bind requests that the socket bind to the given local address before
// connect(). Listen does not use it; a listener binds to the host passed to
// Listen.
func Bind(addr string) Option { return stringOption{TypeBindAddress, addr} }
