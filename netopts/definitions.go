// Package netopts provides the functional-option vocabulary applied to a raw
// socket during do_connect/listen: nonblocking mode, close-on-exec, and the
// TCP-level knobs a connecting or listening socket needs (nodelay,
// keepalive, send/receive buffer sizing, SIGPIPE handling).
package netopts

import "fmt"

type OptionType uint8

const (
	TypeNonblocking OptionType = iota
	TypeCloseOnExec
	TypeReuseAddr
	TypeReusePort
	TypeNoDelay
	TypeNoSigpipe
	TypeKeepalive
	TypeRecvBufferSize
	TypeSendBufferSize
	TypeBindAddress
	MaxOption
)

func (t OptionType) String() string {
	switch t {
	case TypeNonblocking:
		return "nonblocking"
	case TypeCloseOnExec:
		return "close_on_exec"
	case TypeReuseAddr:
		return "reuse_addr"
	case TypeReusePort:
		return "reuse_port"
	case TypeNoDelay:
		return "no_delay"
	case TypeNoSigpipe:
		return "no_sigpipe"
	case TypeKeepalive:
		return "keepalive"
	case TypeRecvBufferSize:
		return "recv_buffer_size"
	case TypeSendBufferSize:
		return "send_buffer_size"
	case TypeBindAddress:
		return "bind_address"
	default:
		return fmt.Sprintf("option(%d)", uint8(t))
	}
}

type Option interface {
	Type() OptionType
	Value() interface{}
}

// Find returns the last option of the given type in opts, if any.
func Find(opts []Option, t OptionType) (Option, bool) {
	for i := len(opts) - 1; i >= 0; i-- {
		if opts[i].Type() == t {
			return opts[i], true
		}
	}
	return nil, false
}
