package stack

import (
	"fmt"
	"strings"
)

// Side names the execution environment a handler body may run in.
type Side uint8

const (
	// Near is the local side (the process doing the dispatch).
	Near Side = iota + 1
	// Far is the remote side a dispatch can be handed off to.
	Far
	// Both runs on either side.
	Both
)

func (s Side) String() string {
	switch s {
	case Near:
		return "near"
	case Far:
		return "far"
	case Both:
		return "both"
	default:
		return "unset"
	}
}

// ParseSide accepts near/far/both and the legacy client/server aliases.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "near", "client":
		return Near, nil
	case "far", "server":
		return Far, nil
	case "both":
		return Both, nil
	default:
		return 0, fmt.Errorf("stack: unknown side %q", s)
	}
}

// runsOn reports whether a handler tagged s may execute on exec.
func (s Side) runsOn(exec Side) bool {
	return s == Both || s == exec
}

// slot maps a side onto the two-slot seen record.
func slot(s Side) int {
	if s == Far {
		return 1
	}
	return 0
}

// sideSet records which sides a dispatch has seen a match for.
type sideSet [2]bool

// see marks the side a matched handler tagged h belongs to on exec. A Both
// handler counts for the executing side.
func (ss *sideSet) see(h, exec Side) {
	if h == Both {
		ss[slot(exec)] = true
		return
	}
	ss[slot(h)] = true
}

func (ss sideSet) has(side Side) bool {
	if side == Both {
		return ss[0] || ss[1]
	}
	return ss[slot(side)]
}

// execSide is the side a dispatch on s actually executes as.
func execSide(s Side) Side {
	if s == Far {
		return Far
	}
	return Near
}
