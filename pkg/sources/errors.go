// Package sources loads the inputs of a coverage run: the ASN to prefixes
// mapping and the list of alive IP addresses.
package sources

import "errors"

var (
	ErrInputNotFound  = errors.New("input not found")
	ErrMalformedInput = errors.New("malformed input")
)
