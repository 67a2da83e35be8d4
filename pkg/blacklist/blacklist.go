// Package blacklist derives the address blocks that should not be probed
// again: the announced space left unexplored after removing every block an
// alive address was found in, plus the reserved ranges.
package blacklist

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
	"github.com/sudorandom/asn-hitlist/pkg/sources"
	"github.com/sudorandom/asn-hitlist/pkg/trie"
)

var ErrInconsistent = errors.New("blacklist still covers alive addresses")

var defaultRoutes = []prefix.Prefix{
	prefix.MustParse("0.0.0.0/0"),
	prefix.MustParse("::/0"),
}

// Engine owns its own prefix index. Only key presence matters, so values are
// empty.
type Engine struct {
	index *trie.Trie[struct{}]
}

// Result is a derived blacklist. Derived holds the remaining announced blocks
// and Static the reserved blocks, which are appended even when they overlap.
type Result struct {
	Derived []prefix.Prefix
	Static  []prefix.Prefix
}

// Lines returns the derived entries followed by the static entries.
func (r Result) Lines() []string {
	lines := make([]string, 0, len(r.Derived)+len(r.Static))
	for _, p := range r.Derived {
		lines = append(lines, p.String())
	}
	for _, p := range r.Static {
		lines = append(lines, p.String())
	}
	return lines
}

// Prefixes returns Derived and Static as one slice, in Lines order.
func (r Result) Prefixes() []prefix.Prefix {
	out := make([]prefix.Prefix, 0, len(r.Derived)+len(r.Static))
	out = append(out, r.Derived...)
	return append(out, r.Static...)
}

// Build indexes every valid prefix of m. It does not share state with a
// coverage engine built from the same mapping.
func Build(m sources.Mapping) *Engine {
	e := &Engine{index: trie.New[struct{}]()}
	for _, entry := range m {
		for _, s := range entry.Prefixes {
			p, err := prefix.Parse(s)
			if err != nil {
				log.Warn("Skipping invalid prefix", "asn", entry.ASN, "err", err)
				continue
			}
			e.index.Insert(p, struct{}{})
		}
	}
	return e
}

// FromPrefixes indexes an explicit list of prefixes.
func FromPrefixes(prefixes []prefix.Prefix) *Engine {
	e := &Engine{index: trie.New[struct{}]()}
	for _, p := range prefixes {
		e.index.Insert(p, struct{}{})
	}
	return e
}

// Len returns the number of blocks currently indexed.
func (e *Engine) Len() int {
	return e.index.Len()
}

// Derive consumes the engine's index:
//
//  1. default routes are removed so they cannot swallow every lookup;
//  2. for every alive address, the block it resolves to and every block
//     covering that one are removed;
//  3. of the remaining blocks, only those without a covering block are kept.
//
// A violated post-condition is logged, not returned; call Verify to check it
// explicitly.
func (e *Engine) Derive(ips []string) Result {
	start := e.index.Len()

	for _, d := range defaultRoutes {
		if e.index.Delete(d) {
			log.Debug("Removed default route", "prefix", d)
		}
	}

	addrs := parseAddrs(ips)
	explored := 0
	for _, ip := range addrs {
		key, _, ok := e.index.LookupAddr(ip)
		for ok {
			e.index.Delete(key)
			explored++
			key, _, ok = e.index.LongestPrefixMatch(key)
		}
	}

	nested := 0
	for _, key := range e.index.Keys() {
		if _, ok := e.index.Parent(key); ok {
			e.index.Delete(key)
			nested++
		}
	}

	res := Result{Derived: e.index.Keys(), Static: Reserved}
	log.Info("Derived blacklist",
		"indexed", start,
		"explored", explored,
		"nested", nested,
		"remaining", len(res.Derived),
		"reserved", len(res.Static))

	if err := e.verify(addrs); err != nil {
		log.Warn("Blacklist consistency check failed", "err", err)
	}
	return res
}

// Verify reports ErrInconsistent if any of ips still resolves to an indexed
// block. After Derive this must never happen.
func (e *Engine) Verify(ips []string) error {
	return e.verify(parseAddrs(ips))
}

func (e *Engine) verify(addrs []netip.Addr) error {
	var offenders []string
	for _, ip := range addrs {
		if key, _, ok := e.index.LookupAddr(ip); ok {
			offenders = append(offenders, ip.String()+" in "+key.String())
		}
	}
	if len(offenders) > 0 {
		return fmt.Errorf("%w: %s", ErrInconsistent, strings.Join(offenders, ", "))
	}
	return nil
}

func parseAddrs(ips []string) []netip.Addr {
	addrs := make([]netip.Addr, 0, len(ips))
	for _, s := range ips {
		ip, err := prefix.ParseAddr(s)
		if err != nil {
			log.Warn("Skipping invalid alive IP", "err", err)
			continue
		}
		addrs = append(addrs, ip)
	}
	return addrs
}
