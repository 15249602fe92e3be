package netcore

// SocketState is the streaming socket lifecycle: none -> connecting ->
// connected -> {shut_down, closed, failed}.
type SocketState int8

const (
	StateNone SocketState = iota
	StateConnecting
	StateConnected
	StateShutDown
	StateClosed
	StateFailed
)

func (s SocketState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShutDown:
		return "shut_down"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ListenState is the listening socket lifecycle: none -> listening ->
// {none, failed}.
type ListenState int8

const (
	ListenStateNone ListenState = iota
	ListenStateListening
	ListenStateFailed
)

func (s ListenState) String() string {
	switch s {
	case ListenStateListening:
		return "listening"
	case ListenStateFailed:
		return "failed"
	default:
		return "none"
	}
}

// SocketLayer is the abstract duplex stream every layer in the chain
// implements, whether it is the raw socket at the bottom or a rate-limited
// or TLS-like layer stacked above it.
type SocketLayer interface {
	Source

	Read(b []byte) (int, error)
	Write(b []byte) (int, error)

	Connect(host, service string) error
	Shutdown() error
	ShutdownRead() error

	GetState() SocketState

	SetEventHandler(Handler)

	// NextLayer returns the layer immediately below, or nil at the bottom
	// of the chain.
	NextLayer() SocketLayer
}

// layerBase implements the bookkeeping every non-bottom layer shares:
// forwarding to the next layer either verbatim (event_passthrough) or after
// synthesizing its own events, plus handler-rebind-through-the-event-loop.
type layerBase struct {
	next               SocketLayer
	handler            Handler
	eventPassthrough   bool
}

func newLayerBase(next SocketLayer, passthrough bool) layerBase {
	return layerBase{next: next, eventPassthrough: passthrough}
}

func (l *layerBase) NextLayer() SocketLayer { return l.next }

func (l *layerBase) Handler() Handler { return l.handler }

// setHandler installs h as the layer's handler. If the layer is
// pass-through it simply rebinds the next layer's handler too, since events
// flow through it unchanged; otherwise the caller (the concrete layer) is
// responsible for wiring its own synthetic event source (e.g. a rate
// limiter bucket's wakeup callback) to h.
func (l *layerBase) setHandler(self Source, h Handler, loop EventLoop) {
	old := l.handler
	l.handler = h

	if loop != nil {
		loop.FilterEvents(func(src Source, handler Handler) (Handler, bool) {
			if src == self && handler == old {
				return h, true
			}
			return handler, true
		})
	}

	if l.eventPassthrough && l.next != nil {
		l.next.SetEventHandler(h)
	}
}
