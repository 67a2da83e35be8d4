// Package hitlist selects one probe target per announced network, skipping
// networks that are blacklisted or reserved.
package hitlist

import (
	"fmt"
	"net/netip"

	"github.com/charmbracelet/log"

	"github.com/sudorandom/asn-hitlist/pkg/blacklist"
	"github.com/sudorandom/asn-hitlist/pkg/coverage"
	"github.com/sudorandom/asn-hitlist/pkg/prefix"
	"github.com/sudorandom/asn-hitlist/pkg/trie"
)

// Filter reports whether a network lies entirely inside a blacklisted block.
// *store.Store and *TrieFilter implement it.
type Filter interface {
	Covers(p prefix.Prefix) (bool, error)
}

// TrieFilter is an in-memory Filter, typically loaded from a blacklist file.
type TrieFilter struct {
	index *trie.Trie[struct{}]
}

func NewTrieFilter(prefixes []prefix.Prefix) *TrieFilter {
	f := &TrieFilter{index: trie.New[struct{}]()}
	for _, p := range prefixes {
		f.index.Insert(p, struct{}{})
	}
	return f
}

func (f *TrieFilter) Covers(p prefix.Prefix) (bool, error) {
	_, _, ok := f.index.LongestPrefixMatch(p)
	return ok, nil
}

type Target struct {
	ASN     string
	Network prefix.Prefix
	Address netip.Addr
}

type Stats struct {
	Networks    int
	Blacklisted int
	Reserved    int
	Emitted     int
}

// Targets walks the networks of e in announcement order and returns the first
// host address of each one that is neither covered by f nor overlapping a
// reserved block. A nil filter only applies the reserved check.
func Targets(e *coverage.Engine, f Filter) ([]Target, Stats, error) {
	var (
		targets []Target
		stats   Stats
	)
	for i, n := range e.Networks() {
		stats.Networks++
		if f != nil {
			covered, err := f.Covers(n.Prefix)
			if err != nil {
				return nil, stats, fmt.Errorf("check %s: %w", n.Prefix, err)
			}
			if covered {
				stats.Blacklisted++
				continue
			}
		}
		if blacklist.IsReserved(n.Prefix) {
			stats.Reserved++
			continue
		}
		targets = append(targets, Target{
			ASN:     e.Owner(i).ID,
			Network: n.Prefix,
			Address: n.Prefix.FirstHost(),
		})
	}
	stats.Emitted = len(targets)

	log.Info("Selected targets",
		"networks", stats.Networks,
		"blacklisted", stats.Blacklisted,
		"reserved", stats.Reserved,
		"emitted", stats.Emitted)
	return targets, stats, nil
}

// Lines returns one address per target.
func Lines(targets []Target) []string {
	lines := make([]string, len(targets))
	for i, t := range targets {
		lines[i] = t.Address.String()
	}
	return lines
}
