// Package report names the operations of the command line tool and turns
// their results into newline-delimited artifacts.
package report

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownOperation = errors.New("unknown operation")

type Operation int

const (
	Coverage Operation = iota
	DeadASN
	AliveASN
	DeadNetworks
	AliveNetworks
	Blacklist
	Targets
)

var operationNames = [...]string{
	Coverage:      "coverage",
	DeadASN:       "dead_asn",
	AliveASN:      "alive_asn",
	DeadNetworks:  "dead_networks",
	AliveNetworks: "alive_networks",
	Blacklist:     "blacklist",
	Targets:       "targets",
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	ops := make([]Operation, len(operationNames))
	for i := range ops {
		ops[i] = Operation(i)
	}
	return ops
}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(operationNames) {
		return fmt.Sprintf("Operation(%d)", int(o))
	}
	return operationNames[o]
}

func ParseOperation(s string) (Operation, error) {
	for i, name := range operationNames {
		if name == s {
			return Operation(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownOperation, s, OperationList())
}

// OperationList returns the operation names joined for help text.
func OperationList() string {
	return strings.Join(operationNames[:], ", ")
}
