package scan

import (
	"encoding/binary"
	"fmt"
	"iter"
	"net"
	"strconv"
	"strings"
)

// Address is an IPv4 host address in its numeric form. The numeric value is
// also the ordering used for reports.
type Address uint32

// AddressFromIP converts an IPv4 address. It returns false for IPv6 or invalid input.
func AddressFromIP(ip net.IP) (Address, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	return Address(binary.BigEndian.Uint32(ip4)), true
}

// ParseAddress parses a dotted-quad IPv4 address.
func ParseAddress(s string) (Address, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr, ok := AddressFromIP(ip)
	if !ok {
		return 0, fmt.Errorf("only IPv4 addresses are supported: %s", s)
	}
	return addr, nil
}

// IP returns the address as a net.IP.
func (a Address) IP() net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, uint32(a))
	return ip
}

func (a Address) String() string {
	return strconv.Itoa(int(a>>24)) + "." +
		strconv.Itoa(int(a>>16&0xff)) + "." +
		strconv.Itoa(int(a>>8&0xff)) + "." +
		strconv.Itoa(int(a&0xff))
}

// MarshalText renders the dotted-quad form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the dotted-quad form.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Subnet is an IPv4 network given by any address inside it and a prefix length.
type Subnet struct {
	Base   Address
	Prefix uint8
}

// NewSubnet validates the prefix length and builds a Subnet.
func NewSubnet(base Address, prefix int) (Subnet, error) {
	if prefix < 0 || prefix > 32 {
		return Subnet{}, fmt.Errorf("%w: /%d", ErrInvalidPrefix, prefix)
	}
	return Subnet{Base: base, Prefix: uint8(prefix)}, nil
}

// ParseSubnet accepts CIDR notation or a bare IPv4 address, which is treated as a /32.
func ParseSubnet(value string) (Subnet, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Subnet{}, fmt.Errorf("%w: empty", ErrInvalidSubnet)
	}

	addrPart, prefixPart, hasPrefix := strings.Cut(value, "/")
	base, err := ParseAddress(addrPart)
	if err != nil {
		return Subnet{}, fmt.Errorf("%w: %v", ErrInvalidSubnet, err)
	}
	if !hasPrefix {
		return NewSubnet(base, 32)
	}

	prefix, err := strconv.Atoi(prefixPart)
	if err != nil {
		return Subnet{}, fmt.Errorf("%w: bad prefix %q", ErrInvalidSubnet, prefixPart)
	}
	return NewSubnet(base, prefix)
}

// Mask returns the network mask as an integer.
func (s Subnet) Mask() uint32 {
	if s.Prefix == 0 {
		return 0
	}
	return ^uint32(0) << (32 - uint32(s.Prefix))
}

// Network returns the lowest address of the subnet.
func (s Subnet) Network() Address {
	return Address(uint32(s.Base) & s.Mask())
}

// Broadcast returns the highest address of the subnet.
func (s Subnet) Broadcast() Address {
	return Address(uint32(s.Base) | ^s.Mask())
}

// Size is the number of addresses covered, 2^(32-prefix).
func (s Subnet) Size() uint64 {
	return uint64(1) << (32 - uint64(s.Prefix))
}

// Contains reports whether addr falls inside the subnet.
func (s Subnet) Contains(addr Address) bool {
	return uint32(addr)&s.Mask() == uint32(s.Network())
}

func (s Subnet) String() string {
	return s.Network().String() + "/" + strconv.Itoa(int(s.Prefix))
}

// All yields every address of the subnet in ascending order without
// materialising the range.
func (s Subnet) All() iter.Seq[Address] {
	first, last := s.Network(), s.Broadcast()
	return func(yield func(Address) bool) {
		for addr := first; ; addr++ {
			if !yield(addr) || addr == last {
				return
			}
		}
	}
}

// Hosts is like All but skips the network and broadcast addresses for
// subnets larger than a /31.
func (s Subnet) Hosts() iter.Seq[Address] {
	if s.Prefix > 30 {
		return s.All()
	}
	network, broadcast := s.Network(), s.Broadcast()
	return func(yield func(Address) bool) {
		for addr := range s.All() {
			if addr == network || addr == broadcast {
				continue
			}
			if !yield(addr) {
				return
			}
		}
	}
}

// HostCount is the number of addresses Hosts yields.
func (s Subnet) HostCount() uint64 {
	if s.Prefix > 30 {
		return s.Size()
	}
	return s.Size() - 2
}

// Targets materialises the enumeration. Use it for class-B sized ranges or smaller.
func (s Subnet) Targets(excludeEdges bool) []Address {
	seq, count := s.All(), s.Size()
	if excludeEdges {
		seq, count = s.Hosts(), s.HostCount()
	}
	targets := make([]Address, 0, count)
	for addr := range seq {
		targets = append(targets, addr)
	}
	return targets
}
