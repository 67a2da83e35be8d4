package trie

import (
	"fmt"
	"math/rand"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
)

func mustInsert(t *testing.T, tr *Trie[string], cidrs ...string) {
	t.Helper()
	for _, c := range cidrs {
		tr.Insert(prefix.MustParse(c), c)
	}
}

func keyStrings(keys []prefix.Prefix) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func TestLongestPrefixMatch(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr,
		"0.0.0.0/0",
		"10.0.0.0/8",
		"10.1.0.0/16",
		"10.1.1.0/24",
		"10.1.1.1/32",
		"192.168.1.0/24",
		"192.168.1.1/32",
		"172.16.0.0/12",
		"2001:db8::/32",
	)

	tests := []struct {
		ip   string
		want string
	}{
		{"10.1.1.1", "10.1.1.1/32"},
		{"10.1.1.2", "10.1.1.0/24"},
		{"10.1.2.1", "10.1.0.0/16"},
		{"10.2.1.1", "10.0.0.0/8"},
		{"192.168.1.1", "192.168.1.1/32"},
		{"192.168.1.2", "192.168.1.0/24"},
		{"172.16.0.1", "172.16.0.0/12"},
		{"172.31.255.255", "172.16.0.0/12"},
		{"172.32.0.1", "0.0.0.0/0"},
		{"8.8.8.8", "0.0.0.0/0"},
		{"2001:db8:ffff::1", "2001:db8::/32"},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			key, val, ok := tr.LookupAddr(netip.MustParseAddr(tt.ip))
			require.True(t, ok)
			assert.Equal(t, tt.want, key.String())
			assert.Equal(t, tt.want, val)
		})
	}

	_, _, ok := tr.LookupAddr(netip.MustParseAddr("2001:db9::1"))
	assert.False(t, ok, "IPv6 lookups must not fall back to the IPv4 default route")
}

func TestLongestPrefixMatchPrefersMoreSpecific(t *testing.T) {
	// Insertion order must not matter.
	for _, order := range [][]string{
		{"198.51.0.0/16", "198.51.100.0/24"},
		{"198.51.100.0/24", "198.51.0.0/16"},
	} {
		tr := New[string]()
		mustInsert(t, tr, order...)
		key, _, ok := tr.LookupAddr(netip.MustParseAddr("198.51.100.5"))
		require.True(t, ok)
		assert.Equal(t, "198.51.100.0/24", key.String())
	}
}

func TestLongestPrefixMatchOnKeys(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24")

	leaf := prefix.MustParse("10.1.1.0/24")
	key, _, ok := tr.LongestPrefixMatch(leaf)
	require.True(t, ok)
	assert.Equal(t, leaf, key)

	require.True(t, tr.Delete(leaf))
	key, _, ok = tr.LongestPrefixMatch(leaf)
	require.True(t, ok)
	assert.Equal(t, "10.1.0.0/16", key.String())

	_, _, ok = tr.LongestPrefixMatch(prefix.MustParse("11.0.0.0/8"))
	assert.False(t, ok)
}

func TestInsertOverwrite(t *testing.T) {
	tr := New[int]()
	p := prefix.MustParse("203.0.113.0/24")

	assert.True(t, tr.Insert(p, 1))
	assert.False(t, tr.Insert(p, 2))
	assert.Equal(t, 1, tr.Len())

	v, ok := tr.Get(p)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestGet(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "10.0.0.0/8", "10.128.0.0/9", "10.0.0.0/9")

	_, ok := tr.Get(prefix.MustParse("10.0.0.0/8"))
	assert.True(t, ok)
	_, ok = tr.Get(prefix.MustParse("10.0.0.0/16"))
	assert.False(t, ok)
	_, ok = tr.Get(prefix.MustParse("11.0.0.0/8"))
	assert.False(t, ok)
}

func TestParent(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "10.0.0.0/8", "10.1.1.0/24", "192.0.2.0/24")

	parent, ok := tr.Parent(prefix.MustParse("10.1.1.0/24"))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", parent.String())

	_, ok = tr.Parent(prefix.MustParse("10.0.0.0/8"))
	assert.False(t, ok)

	_, ok = tr.Parent(prefix.MustParse("192.0.2.0/24"))
	assert.False(t, ok)

	parent, ok = tr.Parent(prefix.MustParse("10.9.0.0/16"))
	require.True(t, ok, "Parent works for keys that are not stored")
	assert.Equal(t, "10.0.0.0/8", parent.String())
}

func TestDelete(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "10.0.0.0/8", "10.0.0.0/9", "10.128.0.0/9", "10.64.0.0/10", "11.0.0.0/8")
	require.Equal(t, 5, tr.Len())

	assert.False(t, tr.Delete(prefix.MustParse("12.0.0.0/8")), "absent key is a no-op")
	assert.False(t, tr.Delete(prefix.MustParse("8.0.0.0/6")), "branch points are not keys")
	assert.Equal(t, 5, tr.Len())

	// Node with two children becomes a branch point.
	require.True(t, tr.Delete(prefix.MustParse("10.0.0.0/8")))
	key, _, ok := tr.LookupAddr(netip.MustParseAddr("10.200.0.1"))
	require.True(t, ok)
	assert.Equal(t, "10.128.0.0/9", key.String())
	key, _, ok = tr.LookupAddr(netip.MustParseAddr("10.65.0.1"))
	require.True(t, ok)
	assert.Equal(t, "10.64.0.0/10", key.String())

	// Leaf under a branch point collapses it.
	require.True(t, tr.Delete(prefix.MustParse("10.128.0.0/9")))
	_, _, ok = tr.LookupAddr(netip.MustParseAddr("10.200.0.1"))
	assert.False(t, ok)

	require.True(t, tr.Delete(prefix.MustParse("10.0.0.0/9")))
	key, _, ok = tr.LookupAddr(netip.MustParseAddr("10.65.0.1"))
	require.True(t, ok)
	assert.Equal(t, "10.64.0.0/10", key.String())

	assert.Equal(t, []string{"10.64.0.0/10", "11.0.0.0/8"}, keyStrings(tr.Keys()))
	assert.Equal(t, 2, tr.Len())
}

func TestDefaultRoute(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "0.0.0.0/0", "198.51.100.0/24")

	key, _, ok := tr.LookupAddr(netip.MustParseAddr("203.0.113.1"))
	require.True(t, ok)
	assert.True(t, key.IsDefault())

	require.True(t, tr.Delete(prefix.MustParse("0.0.0.0/0")))
	_, _, ok = tr.LookupAddr(netip.MustParseAddr("203.0.113.1"))
	assert.False(t, ok)
	assert.Equal(t, []string{"198.51.100.0/24"}, keyStrings(tr.Keys()))
}

func TestKeysOrder(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "2001:db8::/32", "192.0.2.0/24", "10.0.0.0/8", "10.1.0.0/16", "0.0.0.0/0")

	assert.Equal(t,
		[]string{"0.0.0.0/0", "10.0.0.0/8", "10.1.0.0/16", "192.0.2.0/24", "2001:db8::/32"},
		keyStrings(tr.Keys()))
}

func TestAncestors(t *testing.T) {
	tr := New[string]()
	mustInsert(t, tr, "10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24", "10.2.0.0/16")

	var got []string
	tr.Ancestors(prefix.MustParse("10.1.1.128/25"), func(key prefix.Prefix, _ string) bool {
		got = append(got, key.String())
		return true
	})
	assert.Equal(t, []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24"}, got)
}

// TestAgainstLinearScan compares the trie with a brute-force list over a
// random mix of inserts and deletes.
func TestAgainstLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := New[int]()
	ref := map[prefix.Prefix]int{}

	randomPrefix := func() prefix.Prefix {
		addr := netip.AddrFrom4([4]byte{10, byte(rng.Intn(4)), byte(rng.Intn(256)), byte(rng.Intn(256))})
		return prefix.FromNetip(netip.PrefixFrom(addr, 8+rng.Intn(25)))
	}

	for i := 0; i < 2000; i++ {
		p := randomPrefix()
		if rng.Intn(3) == 0 {
			_, had := ref[p]
			assert.Equal(t, had, tr.Delete(p))
			delete(ref, p)
		} else {
			tr.Insert(p, i)
			ref[p] = i
		}
	}
	require.Equal(t, len(ref), tr.Len())
	require.Len(t, tr.Keys(), len(ref))

	for i := 0; i < 2000; i++ {
		ip := netip.AddrFrom4([4]byte{10, byte(rng.Intn(4)), byte(rng.Intn(256)), byte(rng.Intn(256))})

		var best prefix.Prefix
		found := false
		for p := range ref {
			if p.Contains(ip) && (!found || p.Bits() > best.Bits()) {
				best, found = p, true
			}
		}

		key, v, ok := tr.LookupAddr(ip)
		require.Equal(t, found, ok, "lookup %s", ip)
		if found {
			assert.Equal(t, best, key, "lookup %s", ip)
			assert.Equal(t, ref[best], v, "lookup %s", ip)

			var parent prefix.Prefix
			hasParent := false
			for p := range ref {
				if p.Bits() < best.Bits() && p.ContainsPrefix(best) && (!hasParent || p.Bits() > parent.Bits()) {
					parent, hasParent = p, true
				}
			}
			gotParent, ok := tr.Parent(best)
			require.Equal(t, hasParent, ok, "parent of %s", best)
			if hasParent {
				assert.Equal(t, parent, gotParent, "parent of %s", best)
			}
		}
	}
}

func BenchmarkTrieLookup(b *testing.B) {
	tr := New[int]()
	for i := 0; i < 1000; i++ {
		tr.Insert(prefix.MustParse(fmt.Sprintf("10.%d.%d.0/24", (i>>8)&0xFF, i&0xFF)), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ip := netip.AddrFrom4([4]byte{10, byte((i >> 8) & 0xFF), byte(i & 0xFF), 1})
		_, _, _ = tr.LookupAddr(ip)
	}
}
