package netif

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipNet(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	ip, network, err := net.ParseCIDR(cidr)
	require.NoError(t, err)
	network.IP = ip
	return network
}

func withInterfaces(t *testing.T, fn func() ([]ifaceAddrs, error)) {
	t.Helper()
	previous := interfaceAddrs
	interfaceAddrs = fn
	t.Cleanup(func() { interfaceAddrs = previous })
}

func TestCandidatesFiltersAndOrders(t *testing.T) {
	withInterfaces(t, func() ([]ifaceAddrs, error) {
		return []ifaceAddrs{
			{name: "lo", flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{ipNet(t, "127.0.0.1/8")}},
			{name: "wan0", flags: net.FlagUp, addrs: []net.Addr{ipNet(t, "203.0.113.7/24")}},
			{name: "eth0", flags: net.FlagUp, addrs: []net.Addr{
				ipNet(t, "fe80::1/64"),
				ipNet(t, "169.254.3.4/16"),
				ipNet(t, "192.168.1.23/24"),
			}},
			{name: "docker0", flags: 0, addrs: []net.Addr{ipNet(t, "172.17.0.1/16")}},
		}, nil
	})

	candidates, err := Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "eth0", candidates[0].Interface)
	assert.Equal(t, "192.168.1.23", candidates[0].Address.String())
	assert.Equal(t, "192.168.1.0/24", candidates[0].Subnet.String())
	assert.True(t, candidates[0].Private)

	assert.Equal(t, "wan0", candidates[1].Interface)
	assert.False(t, candidates[1].Private)
}

func TestCandidatesNoInterface(t *testing.T) {
	withInterfaces(t, func() ([]ifaceAddrs, error) {
		return []ifaceAddrs{
			{name: "lo", flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{ipNet(t, "127.0.0.1/8")}},
		}, nil
	})

	_, err := Candidates()
	assert.ErrorIs(t, err, ErrNoInterface)
}

func TestCandidatesNoIPv4(t *testing.T) {
	withInterfaces(t, func() ([]ifaceAddrs, error) {
		return []ifaceAddrs{
			{name: "eth0", flags: net.FlagUp, addrs: []net.Addr{ipNet(t, "2001:db8::5/64")}},
		}, nil
	})

	_, err := Default()
	assert.ErrorIs(t, err, ErrNoIPv4)
}

func TestCandidatesListError(t *testing.T) {
	boom := errors.New("netlink unavailable")
	withInterfaces(t, func() ([]ifaceAddrs, error) {
		return nil, boom
	})

	_, err := Candidates()
	assert.ErrorIs(t, err, boom)
}

func TestDefaultFallsBackToFirstCandidate(t *testing.T) {
	withInterfaces(t, func() ([]ifaceAddrs, error) {
		return []ifaceAddrs{
			{name: "eth9", flags: net.FlagUp, addrs: []net.Addr{ipNet(t, "10.99.0.5/16")}},
		}, nil
	})

	chosen, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "eth9", chosen.Interface)
	assert.Equal(t, "10.99.0.0/16", chosen.Subnet.String())
}
