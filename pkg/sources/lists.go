package sources

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
)

// LoadAliveIPs reads the alive-IP file at path.
func LoadAliveIPs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	defer f.Close()

	ips, err := ReadAliveIPs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info("Loaded alive IPs", "path", path, "count", len(ips))
	return ips, nil
}

// ReadAliveIPs returns one entry per non-blank line, whitespace-trimmed. The
// entries are not validated here; resolution skips the ones that do not parse.
func ReadAliveIPs(r io.Reader) ([]string, error) {
	var ips []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ips = append(ips, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return ips, nil
}

// LoadPrefixList reads one CIDR per line, such as a blacklist written by an
// earlier run. Blank lines and lines starting with '#' are ignored; lines
// that do not parse are logged and skipped.
func LoadPrefixList(path string) ([]prefix.Prefix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	defer f.Close()

	prefixes, err := ReadPrefixList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info("Loaded prefix list", "path", path, "count", len(prefixes))
	return prefixes, nil
}

func ReadPrefixList(r io.Reader) ([]prefix.Prefix, error) {
	var prefixes []prefix.Prefix
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := prefix.Parse(line)
		if err != nil {
			log.Warn("Skipping invalid prefix", "line", line, "err", err)
			continue
		}
		prefixes = append(prefixes, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return prefixes, nil
}
