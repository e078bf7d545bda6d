package plan

import (
	"fmt"
	"strings"
)

// Mode selects how plans are captured.
type Mode int

const (
	// Estimated asks the optimizer for plans without executing statements.
	Estimated Mode = iota
	// Actual executes statements and records runtime counters. The capture
	// transaction is always rolled back.
	Actual
)

func (m Mode) String() string {
	if m == Actual {
		return "actual"
	}
	return "estimated"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "estimated":
		return Estimated, nil
	case "actual":
		return Actual, nil
	}
	return Estimated, fmt.Errorf("invalid plan mode %q: must be \"estimated\" or \"actual\"", s)
}

func (m Mode) explainPrefix() string {
	if m == Actual {
		return "EXPLAIN (ANALYZE, VERBOSE, BUFFERS, FORMAT XML) "
	}
	return "EXPLAIN (VERBOSE, COSTS, FORMAT XML) "
}
