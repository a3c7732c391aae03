// Package idgen generates run identifiers.
//
// A run ID tags every log line, sink event and ledger row of one pipeline
// run. IDs are "run_" followed by a UUID v7, so they sort by start time and
// the start time can be recovered from the ID alone.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunPrefix starts every run ID.
const RunPrefix = "run_"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUID strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// RunID produces pipeline run identifiers. Tests may swap it.
var RunID Generator = Prefixed(RunPrefix, UUIDv7())

// RunTime returns the creation time encoded in a run ID.
func RunTime(id string) (time.Time, error) {
	rest, ok := strings.CutPrefix(id, RunPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("idgen: %q is not a run ID", id)
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return time.Time{}, fmt.Errorf("idgen: %q: %w", id, err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("idgen: %q is UUID v%d, want v7", id, u.Version())
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec), nil
}
