package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oschwald/maxminddb-golang"
	"go4.org/netipx"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
)

type asnRecord struct {
	AutonomousSystemNumber uint `maxminddb:"autonomous_system_number"`
}

// LoadMMDB builds a mapping from every network in a GeoLite2-ASN (or
// compatible) database. ASNs appear in the order the database first yields
// one of their networks.
func LoadMMDB(path string) (Mapping, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	defer db.Close()

	dbType := db.Metadata.DatabaseType
	if !strings.Contains(strings.ToUpper(dbType), "ASN") {
		return nil, fmt.Errorf("%w: %s: expected an ASN database, got %q", ErrMalformedInput, path, dbType)
	}

	var m Mapping
	index := make(map[uint]int)
	networks := db.Networks(maxminddb.SkipAliasedNetworks)
	for networks.Next() {
		var record asnRecord
		subnet, err := networks.Network(&record)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
		}
		if record.AutonomousSystemNumber == 0 {
			continue
		}
		p, ok := netipx.FromStdIPNet(subnet)
		if !ok {
			continue
		}
		cidr := prefix.FromNetip(p).String()

		if i, ok := index[record.AutonomousSystemNumber]; ok {
			m[i].Prefixes = append(m[i].Prefixes, cidr)
			continue
		}
		index[record.AutonomousSystemNumber] = len(m)
		m = append(m, Entry{
			ASN:      strconv.FormatUint(uint64(record.AutonomousSystemNumber), 10),
			Prefixes: []string{cidr},
		})
	}
	if err := networks.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}

	log.Info("Loaded ASN mapping from MaxMind database", "path", path, "type", dbType, "asns", len(m), "prefixes", m.PrefixCount())
	return m, nil
}
