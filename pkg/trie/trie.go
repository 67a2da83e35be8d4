// Package trie implements a path-compressed binary trie over IP prefixes with
// longest-prefix-match lookups.
package trie

import (
	"net/netip"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
)

// Trie maps prefixes to values of type T. IPv4 and IPv6 keys live under
// separate roots, so a lookup never crosses address families.
//
// Every stored key has exactly one node. Additional intermediate nodes exist
// only where two keys diverge and neither covers the other; they carry no
// value and are never reported.
//
// A Trie is not safe for concurrent use.
type Trie[T any] struct {
	roots   [2]*node[T]
	entries int
}

type node[T any] struct {
	children     [2]*node[T]
	key          prefix.Prefix
	intermediate bool
	value        T
}

func New[T any]() *Trie[T] {
	return &Trie[T]{}
}

func family(p prefix.Prefix) int {
	if p.Is4() {
		return 0
	}
	return 1
}

// Len returns the number of stored keys.
func (t *Trie[T]) Len() int {
	return t.entries
}

// Insert stores v under p, replacing any value already stored under exactly
// p. Overlapping but distinct prefixes are kept as separate keys. It returns
// true if p was not stored before.
func (t *Trie[T]) Insert(p prefix.Prefix, v T) bool {
	if !p.IsValid() {
		return false
	}
	f := family(p)
	in := &node[T]{key: p, value: v}

	var (
		parent   *node[T]
		bit      uint8
		matchLen int
	)
	cur := t.roots[f]
	for cur != nil {
		matchLen = cur.key.CommonBits(p)
		if matchLen != cur.key.Bits() || cur.key.Bits() == p.Bits() {
			break
		}
		bit = p.Bit(cur.key.Bits())
		parent = cur
		cur = cur.children[bit]
	}

	link := func(n *node[T]) {
		if parent == nil {
			t.roots[f] = n
		} else {
			parent.children[bit] = n
		}
	}

	if cur == nil {
		link(in)
		t.entries++
		return true
	}

	// Same key: take over the slot and the subtree.
	if matchLen == cur.key.Bits() {
		in.children = cur.children
		link(in)
		if cur.intermediate {
			t.entries++
			return true
		}
		return false
	}

	t.entries++

	// p covers cur.
	if matchLen == p.Bits() {
		in.children[cur.key.Bit(matchLen)] = cur
		link(in)
		return true
	}

	// p and cur diverge below their common bits.
	branch := &node[T]{
		key:          prefix.FromNetip(netip.PrefixFrom(p.Addr(), matchLen)),
		intermediate: true,
	}
	branch.children[p.Bit(matchLen)] = in
	branch.children[cur.key.Bit(matchLen)] = cur
	link(branch)
	return true
}

// traverse calls fn for every stored key covering p, from the least to the
// most specific. Iteration stops early when fn returns false.
func (t *Trie[T]) traverse(p prefix.Prefix, fn func(n *node[T]) bool) {
	if !p.IsValid() {
		return
	}
	for cur := t.roots[family(p)]; cur != nil; cur = cur.children[p.Bit(cur.key.Bits())] {
		if cur.key.CommonBits(p) < cur.key.Bits() {
			return
		}
		if !cur.intermediate && !fn(cur) {
			return
		}
		if cur.key.Bits() >= p.Bits() {
			return
		}
	}
}

// Get returns the value stored under exactly p.
func (t *Trie[T]) Get(p prefix.Prefix) (v T, ok bool) {
	t.traverse(p, func(n *node[T]) bool {
		if n.key == p {
			v, ok = n.value, true
			return false
		}
		return true
	})
	return v, ok
}

// LongestPrefixMatch returns the most specific stored key that covers p,
// including p itself. Passing a host prefix resolves an address; passing a
// stored key after deleting it yields its nearest covering ancestor.
func (t *Trie[T]) LongestPrefixMatch(p prefix.Prefix) (key prefix.Prefix, v T, ok bool) {
	t.traverse(p, func(n *node[T]) bool {
		key, v, ok = n.key, n.value, true
		return true
	})
	return key, v, ok
}

// LookupAddr resolves an address to the most specific stored key containing it.
func (t *Trie[T]) LookupAddr(ip netip.Addr) (prefix.Prefix, T, bool) {
	return t.LongestPrefixMatch(prefix.FromAddr(ip))
}

// Parent returns the most specific stored key that strictly covers p. It
// reports false when p is a root-level entry. p itself need not be stored.
func (t *Trie[T]) Parent(p prefix.Prefix) (parent prefix.Prefix, ok bool) {
	t.traverse(p, func(n *node[T]) bool {
		if n.key.Bits() >= p.Bits() {
			return false
		}
		parent, ok = n.key, true
		return true
	})
	return parent, ok
}

// Ancestors calls fn for every stored key that covers p, shortest first.
func (t *Trie[T]) Ancestors(p prefix.Prefix, fn func(key prefix.Prefix, v T) bool) {
	t.traverse(p, func(n *node[T]) bool {
		return fn(n.key, n.value)
	})
}

// Delete removes exactly p. It returns false if p was not stored.
func (t *Trie[T]) Delete(p prefix.Prefix) bool {
	if !p.IsValid() {
		return false
	}
	f := family(p)

	var (
		grandParent, parent *node[T]
		bit, prevBit        uint8
	)
	cur := t.roots[f]
	for cur != nil {
		matchLen := cur.key.CommonBits(p)
		if matchLen != cur.key.Bits() || cur.key.Bits() == p.Bits() {
			break
		}
		prevBit = bit
		bit = p.Bit(cur.key.Bits())
		grandParent = parent
		parent = cur
		cur = cur.children[bit]
	}
	if cur == nil || cur.intermediate || cur.key != p {
		return false
	}
	t.entries--

	// Both subtrees must stay reachable, so keep the node as a branch point.
	if cur.children[0] != nil && cur.children[1] != nil {
		var zero T
		cur.intermediate = true
		cur.value = zero
		return true
	}

	// A leaf under a branch point: the branch point is no longer needed and
	// its other child takes its place.
	if parent != nil && parent.intermediate && cur.children[0] == nil && cur.children[1] == nil {
		sibling := parent.children[1-bit]
		parent.children = [2]*node[T]{}
		if grandParent == nil {
			t.roots[f] = sibling
		} else {
			grandParent.children[prevBit] = sibling
		}
		return true
	}

	child := cur.children[0]
	if child == nil {
		child = cur.children[1]
	}
	if parent == nil {
		t.roots[f] = child
	} else {
		parent.children[bit] = child
	}
	return true
}

// Walk calls fn for every stored key in pre-order, IPv4 before IPv6 and the
// 0-branch before the 1-branch. The trie must not be modified during a walk;
// take a Keys snapshot first when deleting.
func (t *Trie[T]) Walk(fn func(key prefix.Prefix, v T) bool) {
	for _, root := range t.roots {
		if root != nil && !root.walk(fn) {
			return
		}
	}
}

func (n *node[T]) walk(fn func(prefix.Prefix, T) bool) bool {
	if !n.intermediate && !fn(n.key, n.value) {
		return false
	}
	for _, c := range n.children {
		if c != nil && !c.walk(fn) {
			return false
		}
	}
	return true
}

// Keys returns a snapshot of all stored keys in Walk order.
func (t *Trie[T]) Keys() []prefix.Prefix {
	keys := make([]prefix.Prefix, 0, t.entries)
	t.Walk(func(key prefix.Prefix, _ T) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}
