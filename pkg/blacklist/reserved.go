package blacklist

import (
	"sync"

	"go4.org/netipx"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
)

// Reserved is always appended to a derived blacklist. It lists the IANA
// special-purpose blocks that must never be probed.
var Reserved = []prefix.Prefix{
	prefix.MustParse("0.0.0.0/8"),          // "This network"
	prefix.MustParse("10.0.0.0/8"),         // Private
	prefix.MustParse("100.64.0.0/10"),      // Shared address space (CGN)
	prefix.MustParse("127.0.0.0/8"),        // Loopback
	prefix.MustParse("169.254.0.0/16"),     // Link local
	prefix.MustParse("172.16.0.0/12"),      // Private
	prefix.MustParse("192.0.0.0/24"),       // IETF protocol assignments
	prefix.MustParse("192.0.2.0/24"),       // TEST-NET-1
	prefix.MustParse("192.88.99.0/24"),     // 6to4 relay anycast (deprecated)
	prefix.MustParse("192.168.0.0/16"),     // Private
	prefix.MustParse("198.18.0.0/15"),      // Benchmarking
	prefix.MustParse("198.51.100.0/24"),    // TEST-NET-2
	prefix.MustParse("203.0.113.0/24"),     // TEST-NET-3
	prefix.MustParse("224.0.0.0/4"),        // Multicast
	prefix.MustParse("240.0.0.0/4"),        // Reserved for future use
	prefix.MustParse("255.255.255.255/32"), // Limited broadcast
	prefix.MustParse("::/128"),             // Unspecified
	prefix.MustParse("::1/128"),            // Loopback
	prefix.MustParse("64:ff9b:1::/48"),     // Local-use IPv4/IPv6 translation
	prefix.MustParse("100::/64"),           // Discard-only
	prefix.MustParse("2001:db8::/32"),      // Documentation
	prefix.MustParse("fc00::/7"),           // Unique local
	prefix.MustParse("fe80::/10"),          // Link local
	prefix.MustParse("ff00::/8"),           // Multicast
}

var reservedSet = sync.OnceValue(func() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, p := range Reserved {
		b.AddPrefix(p.Netip())
	}
	set, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return set
})

// ReservedSet returns the union of Reserved as an IP set.
func ReservedSet() *netipx.IPSet {
	return reservedSet()
}

// IsReserved reports whether any address of p falls in a reserved block.
func IsReserved(p prefix.Prefix) bool {
	return ReservedSet().OverlapsPrefix(p.Netip())
}
