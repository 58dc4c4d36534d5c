// Package locator implements the network-locator data model shared by the
// rest of the data plane: an address family plus a fixed-width address, the
// Go equivalent of the nn_locator_t wire structure, along with the
// multicast-membership test addrset relies on to route a Locator into its
// unicast or multicast subtree.
package locator

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies a Locator's address family/transport.
type Kind int32

// Kind values are pinned to the RTPS wire numbers (INVALID=-1, RESERVED=0,
// UDPv4=1, UDPv6=2, UDPv4MCGEN=4096), not assigned by iota, since Encode
// writes Kind straight onto the wire; TCPv4/TCPv6 take the values the wider
// RTPS locator kind enum gives them so they don't collide with the pinned
// ones.
const (
	KindInvalid    Kind = -1
	KindReserved   Kind = 0
	KindUDPv4      Kind = 1
	KindUDPv6      Kind = 2
	KindTCPv4      Kind = 4
	KindTCPv6      Kind = 8
	// KindUDPv4MCGen marks a "multicast generator" pseudo-locator: a
	// template UDPv4 address plus an index range, expanded into concrete
	// group addresses at discovery time rather than carrying one address
	// each. It is never itself a valid send/receive address.
	KindUDPv4MCGen Kind = 4096
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindReserved:
		return "reserved"
	case KindUDPv4:
		return "udpv4"
	case KindUDPv6:
		return "udpv6"
	case KindTCPv4:
		return "tcpv4"
	case KindTCPv6:
		return "tcpv6"
	case KindUDPv4MCGen:
		return "udpv4mcgen"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

// Address is a 16-byte address field, wide enough for an IPv6 address; IPv4
// addresses are stored in the last 4 bytes (the first 12 bytes zero), the
// same convention the wire locator structure uses so a single fixed-size
// field covers every Kind.
type Address [16]byte

// Locator is a transport-qualified network address plus port.
type Locator struct {
	Kind    Kind
	Port    uint32
	Address Address
}

// MCGenParams carries the extra fields a KindUDPv4MCGen locator needs:
// the number of addresses in the generated block and this locator's index
// within it.
type MCGenParams struct {
	Count uint32
	Index uint32
}

// NewUDPv4 builds a Locator from a 4-byte IPv4 address and port.
func NewUDPv4(a, b, c, d byte, port uint32) Locator {
	var addr Address
	addr[12], addr[13], addr[14], addr[15] = a, b, c, d
	return Locator{Kind: KindUDPv4, Port: port, Address: addr}
}

// IsMulticast reports whether the locator's address falls in its
// transport's multicast range, the same is_mcaddr(loc) test addrset uses to
// decide which subtree a locator belongs in. Only the UDP/TCP v4 and v6
// kinds and UDPv4MCGen are classified; anything else is treated as
// non-multicast.
func (l Locator) IsMulticast() bool {
	switch l.Kind {
	case KindUDPv4, KindTCPv4, KindUDPv4MCGen:
		return l.Address[12]&0xf0 == 0xe0 // 224.0.0.0/4
	case KindUDPv6, KindTCPv6:
		return l.Address[0] == 0xff // ff00::/8
	default:
		return false
	}
}

// IsSSM reports whether the locator's address falls in its transport's
// source-specific multicast range (232.0.0.0/8 for IPv4, ff3x::/32 for
// IPv6), mirroring ddsi_is_ssm_mcaddr; merge operations use it to exclude
// SSM groups that only make sense bound to their original source.
func (l Locator) IsSSM() bool {
	switch l.Kind {
	case KindUDPv4, KindTCPv4:
		return l.Address[12] == 232
	case KindUDPv6, KindTCPv6:
		return l.Address[0] == 0xff && l.Address[1]&0xf0 == 0x30
	default:
		return false
	}
}

// IsUnspecified reports whether the locator is the all-zero wildcard
// sentinel (kind RESERVED=0, zero address, zero port), mirroring
// is_unspec_locator.
func (l Locator) IsUnspecified() bool {
	return l.Kind == KindReserved && l.Port == 0 && l.Address == Address{}
}

// Unspecified returns the wildcard locator value, matching
// set_unspec_locator.
func Unspecified() Locator {
	return Locator{}
}

// Compare orders locators by Kind, then Address, then Port; this total
// order is what addrset's underlying trees sort on.
func Compare(a, b Locator) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	for i := range a.Address {
		if a.Address[i] != b.Address[i] {
			if a.Address[i] < b.Address[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	default:
		return 0
	}
}

// Wire is the fixed-width on-the-wire encoding of a Locator: a 4-byte kind,
// a 4-byte port, and the 16-byte address, matching the RTPS locator
// structure's field order and widths.
type Wire [24]byte

// Encode writes the wire form of l.
func Encode(l Locator) Wire {
	var w Wire
	binary.BigEndian.PutUint32(w[0:4], uint32(l.Kind))
	binary.BigEndian.PutUint32(w[4:8], l.Port)
	copy(w[8:24], l.Address[:])
	return w
}

// Decode reverses Encode.
func Decode(w Wire) Locator {
	return Locator{
		Kind: Kind(binary.BigEndian.Uint32(w[0:4])),
		Port: binary.BigEndian.Uint32(w[4:8]),
		Address: func() (a Address) {
			copy(a[:], w[8:24])
			return
		}(),
	}
}
