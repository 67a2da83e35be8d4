package report

import (
	"strconv"
	"strings"
)

// FormatPercent renders a percentage with as many digits as needed, always
// keeping one decimal place: 50 becomes "50.0", 100/3 "33.333333333333336".
func FormatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// CoverageLine is the single line written by the coverage operation.
func CoverageLine(percent float64) string {
	return "asn found/ total asns = " + FormatPercent(percent)
}
