package netcore

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// AddressFamily mirrors the {unknown, ipv4, ipv6} family enum candidate
// addresses are tagged with.
type AddressFamily int8

const (
	FamilyUnknown AddressFamily = iota
	FamilyIPv4
	FamilyIPv6
)

func (f AddressFamily) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

func familyOf(addr netip.Addr) AddressFamily {
	switch {
	case addr.Is4() || addr.Is4In6():
		return FamilyIPv4
	case addr.Is6():
		return FamilyIPv6
	default:
		return FamilyUnknown
	}
}

// resolve returns the ordered list of candidate endpoints for host:service,
// the way getaddrinfo with passive+numeric-service hints would for a
// connecting socket. The system resolver decides ordering; this layer does
// not re-sort it.
func resolve(ctx context.Context, host, service string) ([]netip.AddrPort, error) {
	port, err := strconv.ParseUint(service, 10, 16)
	if err != nil {
		// service may be a well-known name; defer to net.LookupPort.
		p, lerr := net.DefaultResolver.LookupPort(ctx, "tcp", service)
		if lerr != nil {
			return nil, fmt.Errorf("resolve service %q: %w", service, err)
		}
		port = uint64(p)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}

	candidates := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		candidates = append(candidates, netip.AddrPortFrom(addr.Unmap(), uint16(port)))
	}
	return candidates, nil
}

// textualizeAddr renders addr the way getnameinfo(NI_NUMERICHOST |
// NI_NUMERICSERV) would: IPv6 zone indices are stripped, and when a port
// accompanies the address (withPort) an IPv6 literal is bracketed; an
// IPv4-mapped IPv6 address is written without brackets. One of
// these is built per candidate address during do_connect's iteration, so the
// scratch buffer comes from a pool rather than a fresh allocation each time.
func textualizeAddr(addr netip.AddrPort, withPort bool) string {
	a := addr.Addr()
	if a.Zone() != "" {
		a = a.WithZone("")
	}

	if !withPort {
		return a.String()
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if a.Is6() && !a.Is4In6() {
		fmt.Fprintf(buf, "[%s]:%d", a.String(), addr.Port())
	} else {
		fmt.Fprintf(buf, "%s:%d", a.String(), addr.Port())
	}
	return buf.String()
}
