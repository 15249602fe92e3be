package netcore

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFamilyOf(t *testing.T) {
	require.Equal(t, FamilyIPv4, familyOf(netip.MustParseAddr("127.0.0.1")))
	require.Equal(t, FamilyIPv6, familyOf(netip.MustParseAddr("::1")))
	require.Equal(t, FamilyIPv4, familyOf(netip.MustParseAddr("::ffff:127.0.0.1")))
}

func TestTextualizeAddrStripsZoneAndBracketsIPv6(t *testing.T) {
	v4 := netip.MustParseAddrPort("127.0.0.1:8080")
	require.Equal(t, "127.0.0.1:8080", textualizeAddr(v4, true))
	require.Equal(t, "127.0.0.1", textualizeAddr(v4, false))

	v6 := netip.MustParseAddrPort("[fe80::1%eth0]:443")
	require.Equal(t, "[fe80::1]:443", textualizeAddr(v6, true))
	require.Equal(t, "fe80::1", textualizeAddr(v6, false))

	mapped := netip.MustParseAddrPort("[::ffff:127.0.0.1]:22")
	require.Equal(t, "::ffff:127.0.0.1:22", textualizeAddr(mapped, true))
}
