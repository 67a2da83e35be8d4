// Package coverage resolves alive addresses against the announced prefixes of
// every ASN and classifies ASNs and networks as alive or dead.
package coverage

import (
	"github.com/charmbracelet/log"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
	"github.com/sudorandom/asn-hitlist/pkg/report"
	"github.com/sudorandom/asn-hitlist/pkg/sources"
	"github.com/sudorandom/asn-hitlist/pkg/trie"
)

// ASNRecord is one ASN of the input mapping. Found is set once any alive
// address resolves into one of its networks and is never cleared.
type ASNRecord struct {
	ID       string
	Networks []prefix.Prefix
	Found    bool
}

// NetworkRecord is one distinct announced prefix. Owner indexes the ASN arena
// and points at the last ASN that announced the prefix.
type NetworkRecord struct {
	Prefix prefix.Prefix
	Owner  int
	Found  bool
}

type ResolveStats struct {
	Total     int
	Invalid   int
	Matched   int
	Unmatched int
}

type Engine struct {
	asns     []ASNRecord
	networks []NetworkRecord
	index    *trie.Trie[int]
}

// Build creates the ASN and network arenas from m and indexes every valid
// prefix. Prefixes that do not parse are logged and skipped.
func Build(m sources.Mapping) *Engine {
	e := &Engine{
		asns:  make([]ASNRecord, 0, len(m)),
		index: trie.New[int](),
	}

	skipped := 0
	for _, entry := range m {
		owner := len(e.asns)
		rec := ASNRecord{ID: entry.ASN}
		for _, s := range entry.Prefixes {
			p, err := prefix.Parse(s)
			if err != nil {
				log.Warn("Skipping invalid prefix", "asn", entry.ASN, "err", err)
				skipped++
				continue
			}
			rec.Networks = append(rec.Networks, p)

			if i, ok := e.index.Get(p); ok {
				e.networks[i].Owner = owner
				continue
			}
			e.index.Insert(p, len(e.networks))
			e.networks = append(e.networks, NetworkRecord{Prefix: p, Owner: owner})
		}
		e.asns = append(e.asns, rec)
	}

	log.Info("Built coverage index", "asns", len(e.asns), "networks", len(e.networks), "skipped", skipped)
	return e
}

// Resolve marks the network and the owning ASN of every alive address as
// found. Addresses that match no network are counted but otherwise ignored.
// Calling Resolve again with the same input changes nothing.
func (e *Engine) Resolve(ips []string) ResolveStats {
	stats := ResolveStats{Total: len(ips)}
	for _, s := range ips {
		ip, err := prefix.ParseAddr(s)
		if err != nil {
			log.Warn("Skipping invalid alive IP", "err", err)
			stats.Invalid++
			continue
		}
		_, i, ok := e.index.LookupAddr(ip)
		if !ok {
			stats.Unmatched++
			continue
		}
		stats.Matched++
		n := &e.networks[i]
		n.Found = true
		e.asns[n.Owner].Found = true
	}
	log.Debug("Resolved alive IPs", "total", stats.Total, "matched", stats.Matched, "unmatched", stats.Unmatched, "invalid", stats.Invalid)
	return stats
}

// Found returns the number of ASNs with at least one alive network.
func (e *Engine) Found() int {
	n := 0
	for _, a := range e.asns {
		if a.Found {
			n++
		}
	}
	return n
}

// Percent is the share of found ASNs, from 0 to 100. It is 0 for an empty
// mapping.
func (e *Engine) Percent() float64 {
	if len(e.asns) == 0 {
		return 0
	}
	return 100 * float64(e.Found()) / float64(len(e.asns))
}

// Report returns the one-line coverage summary.
func (e *Engine) Report() string {
	return report.CoverageLine(e.Percent())
}

func (e *Engine) AliveASNs() []string { return e.asnIDs(true) }
func (e *Engine) DeadASNs() []string { return e.asnIDs(false) }

func (e *Engine) asnIDs(found bool) []string {
	out := []string{}
	for _, a := range e.asns {
		if a.Found == found {
			out = append(out, a.ID)
		}
	}
	return out
}

func (e *Engine) AliveNetworks() []string { return e.networkStrings(true) }
func (e *Engine) DeadNetworks() []string { return e.networkStrings(false) }

func (e *Engine) networkStrings(found bool) []string {
	out := []string{}
	for _, n := range e.networks {
		if n.Found == found {
			out = append(out, n.Prefix.String())
		}
	}
	return out
}

// ASNs returns the ASN arena. Callers must not modify it.
func (e *Engine) ASNs() []ASNRecord {
	return e.asns
}

// Networks returns the network arena in first-announcement order. Callers
// must not modify it.
func (e *Engine) Networks() []NetworkRecord {
	return e.networks
}

// Owner returns the ASN record that owns network i.
func (e *Engine) Owner(i int) ASNRecord {
	return e.asns[e.networks[i].Owner]
}
