package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// Entry is one ASN and the prefixes it announces, as written in the input.
type Entry struct {
	ASN      string
	Prefixes []string
}

// Mapping keeps the entries in the order they appear in the input document.
type Mapping []Entry

// PrefixCount returns the total number of prefix strings across all entries.
func (m Mapping) PrefixCount() int {
	n := 0
	for _, e := range m {
		n += len(e.Prefixes)
	}
	return n
}

// LoadMapping reads a mapping from path. Files ending in .mmdb are read as a
// MaxMind ASN database, anything else as a JSON object of the form
// {"64500": ["198.51.100.0/24", ...], ...}.
func LoadMapping(path string) (Mapping, error) {
	if strings.EqualFold(filepath.Ext(path), ".mmdb") {
		return LoadMMDB(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn("Error closing mapping file", "path", path, "err", err)
		}
	}()

	m, err := ReadMapping(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info("Loaded ASN mapping", "path", path, "asns", len(m), "prefixes", m.PrefixCount())
	return m, nil
}

// ReadMapping decodes a JSON mapping while preserving key order. When an ASN
// key repeats, the later prefix list replaces the earlier one in place.
func ReadMapping(r io.Reader) (Mapping, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object, got %v", ErrMalformedInput, tok)
	}

	var m Mapping
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		asn, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformedInput, tok)
		}

		var prefixes []string
		if err := dec.Decode(&prefixes); err != nil {
			return nil, fmt.Errorf("%w: asn %s: %v", ErrMalformedInput, asn, err)
		}

		if i, ok := index[asn]; ok {
			m[i].Prefixes = prefixes
			continue
		}
		index[asn] = len(m)
		m = append(m, Entry{ASN: asn, Prefixes: prefixes})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return m, nil
}
