// Package netif finds the local IPv4 subnet a scan should cover.
package netif

import (
	"errors"
	"fmt"
	"net"
	"sort"

	"netsweep/internal/scan"
)

var (
	// ErrNoInterface is returned when no interface is up apart from loopback.
	ErrNoInterface = errors.New("no usable network interface")
	// ErrNoIPv4 is returned when usable interfaces carry no IPv4 address.
	ErrNoIPv4 = errors.New("no IPv4 address assigned")
)

// Candidate is one IPv4 address configured on a local interface.
type Candidate struct {
	Interface string
	Address   scan.Address
	Subnet    scan.Subnet
	Private   bool
}

// interfaceAddrs is swapped out in tests.
var interfaceAddrs = systemInterfaceAddrs

type ifaceAddrs struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

func systemInterfaceAddrs() ([]ifaceAddrs, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]ifaceAddrs, 0, len(interfaces))
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, ifaceAddrs{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return out, nil
}

// Candidates lists IPv4 addresses on interfaces that are up and not
// loopback, private ranges first.
func Candidates() ([]Candidate, error) {
	interfaces, err := interfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	usable := 0
	var candidates []Candidate
	for _, iface := range interfaces {
		// Skip loopback and down interfaces
		if iface.flags&net.FlagLoopback != 0 || iface.flags&net.FlagUp == 0 {
			continue
		}
		usable++

		for _, addr := range iface.addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := scan.AddressFromIP(ipNet.IP)
			if !ok || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			ones, bits := ipNet.Mask.Size()
			if bits != 32 {
				continue
			}
			subnet, err := scan.NewSubnet(ip, ones)
			if err != nil {
				continue
			}
			candidates = append(candidates, Candidate{
				Interface: iface.name,
				Address:   ip,
				Subnet:    subnet,
				Private:   ipNet.IP.IsPrivate(),
			})
		}
	}

	if usable == 0 {
		return nil, ErrNoInterface
	}
	if len(candidates) == 0 {
		return nil, ErrNoIPv4
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Private && !candidates[j].Private
	})
	return candidates, nil
}

// Default picks the interface that carries the default route, falling back
// to the first private candidate.
func Default() (Candidate, error) {
	candidates, err := Candidates()
	if err != nil {
		return Candidate{}, err
	}
	if src, ok := outboundAddress(); ok {
		for _, c := range candidates {
			if c.Address == src {
				return c, nil
			}
		}
	}
	return candidates[0], nil
}

// outboundAddress asks the kernel which source address it would use for an
// off-link destination. No packet is sent for a UDP connect.
func outboundAddress() (scan.Address, bool) {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err != nil {
		return 0, false
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, false
	}
	return scan.AddressFromIP(local.IP)
}
