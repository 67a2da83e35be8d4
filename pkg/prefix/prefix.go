// Package prefix provides the canonical CIDR value type shared by the trie, the
// coverage engine and the blacklist engine.
package prefix

import (
	"errors"
	"fmt"
	"math/bits"
	"net/netip"
	"strings"
)

var ErrInvalidPrefix = errors.New("invalid prefix")

// Prefix is a CIDR block whose host bits are always zero. The zero value is
// invalid. Prefix values are comparable and can be used as map keys.
type Prefix struct {
	p netip.Prefix
}

// Parse parses CIDR text such as "198.51.100.0/24". A bare address is treated
// as a host prefix. Host bits are cleared and IPv4-mapped IPv6 prefixes are
// converted to plain IPv4.
func Parse(s string) (Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Prefix{}, fmt.Errorf("%w: empty string", ErrInvalidPrefix)
	}
	if !strings.Contains(s, "/") {
		addr, err := ParseAddr(s)
		if err != nil {
			return Prefix{}, err
		}
		return FromAddr(addr), nil
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Prefix{}, fmt.Errorf("%w: %q: %v", ErrInvalidPrefix, s, err)
	}
	return FromNetip(p), nil
}

// MustParse is like Parse but panics on error. It is meant for static tables.
func MustParse(s string) Prefix {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseAddr parses a single IP address literal.
func ParseAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q: %v", ErrInvalidPrefix, s, err)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("%w: %q: zoned address", ErrInvalidPrefix, s)
	}
	return addr.Unmap(), nil
}

// FromNetip canonicalizes a netip.Prefix.
func FromNetip(p netip.Prefix) Prefix {
	if !p.IsValid() {
		return Prefix{}
	}
	addr := p.Addr()
	n := p.Bits()
	if addr.Is4In6() {
		if n < 96 {
			return Prefix{p: p.Masked()}
		}
		addr, n = addr.Unmap(), n-96
	}
	return Prefix{p: netip.PrefixFrom(addr, n).Masked()}
}

// FromAddr returns the host prefix (/32 or /128) of addr.
func FromAddr(addr netip.Addr) Prefix {
	addr = addr.Unmap()
	return Prefix{p: netip.PrefixFrom(addr, addr.BitLen())}
}

func (p Prefix) IsValid() bool { return p.p.IsValid() }
func (p Prefix) Is4() bool { return p.p.Addr().Is4() }
func (p Prefix) Addr() netip.Addr { return p.p.Addr() }
func (p Prefix) Bits() int { return p.p.Bits() }
func (p Prefix) Netip() netip.Prefix { return p.p }
func (p Prefix) String() string { return p.p.String() }
func (p Prefix) MaxBits() int { return p.p.Addr().BitLen() }
func (p Prefix) IsDefault() bool { return p.IsValid() && p.p.Bits() == 0 }
func (p Prefix) IsSingleIP() bool { return p.p.IsSingleIP() }
func (p Prefix) Overlaps(o Prefix) bool { return p.p.Overlaps(o.p) }

// Contains reports whether ip falls inside p. Addresses of the other family
// are never contained.
func (p Prefix) Contains(ip netip.Addr) bool {
	return p.p.Contains(ip.Unmap())
}

// ContainsPrefix reports whether o is equal to or more specific than p and
// lies inside it.
func (p Prefix) ContainsPrefix(o Prefix) bool {
	if !p.IsValid() || !o.IsValid() || p.Is4() != o.Is4() {
		return false
	}
	return p.Bits() <= o.Bits() && p.p.Contains(o.p.Addr())
}

// Bit returns the i-th most significant bit of the network address.
func (p Prefix) Bit(i int) uint8 {
	b := p.p.Addr().As16()
	if p.Is4() {
		i += 96
	}
	return (b[i/8] >> (7 - uint(i%8))) & 1
}

// CommonBits returns how many leading bits p and o share, capped at the
// shorter of the two prefix lengths.
func (p Prefix) CommonBits(o Prefix) int {
	if p.Is4() != o.Is4() {
		return 0
	}
	limit := min(p.Bits(), o.Bits())
	a, b := p.p.Addr().As16(), o.p.Addr().As16()
	start := 0
	if p.Is4() {
		start = 12
	}
	n := 0
	for i := start; i < 16 && n < limit; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(x)
		break
	}
	return min(n, limit)
}

// BitKey renders the significant bits of p as a string of '0' and '1'.
func (p Prefix) BitKey() string {
	var sb strings.Builder
	sb.Grow(p.Bits())
	for i := 0; i < p.Bits(); i++ {
		sb.WriteByte('0' + p.Bit(i))
	}
	return sb.String()
}

// FirstHost returns the first usable host address of p. For /31, /32, /127 and
// /128 that is the network address itself.
func (p Prefix) FirstHost() netip.Addr {
	addr := p.p.Addr()
	if p.MaxBits()-p.Bits() <= 1 {
		return addr
	}
	return addr.Next()
}

// Compare orders prefixes IPv4 first, then by address, then by length.
func (p Prefix) Compare(o Prefix) int {
	if p.Is4() != o.Is4() {
		if p.Is4() {
			return -1
		}
		return 1
	}
	if c := p.p.Addr().Compare(o.p.Addr()); c != 0 {
		return c
	}
	return p.Bits() - o.Bits()
}
