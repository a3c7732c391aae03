// Package route defines the data exchanged between the prerender
// components: routes to snapshot, readiness predicates, per-route render
// results and the end-of-run summary.
package route

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"
)

// Kind selects the readiness predicate for a route.
type Kind string

const (
	KindListing Kind = "listing" // listing / home page
	KindDetail  Kind = "detail"  // one page per manifest entry
	KindStatic  Kind = "static"  // fixed structural pages (about, contact, ...)
)

// Kinds lists every route kind. Each must have exactly one Predicate.
var Kinds = []Kind{KindListing, KindDetail, KindStatic}

// ParseKind maps a configuration string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindListing, KindDetail, KindStatic:
		return k, nil
	}
	return "", fmt.Errorf("route: unknown kind %q", s)
}

// Route is a root-relative URL path to snapshot. Immutable once resolved.
type Route struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Predicate is the readiness check for a route kind: Selector must match an
// element and, when NonEmpty is set, that element's text must be non-empty.
type Predicate struct {
	Selector string `json:"selector" yaml:"selector"`
	NonEmpty bool   `json:"non_empty" yaml:"non_empty"`
}

// Predicates binds one Predicate to each Kind.
type Predicates map[Kind]Predicate

// Validate checks that every Kind has a predicate with a selector and that
// no unknown kind is registered.
func (p Predicates) Validate() error {
	for _, k := range Kinds {
		pred, ok := p[k]
		if !ok {
			return fmt.Errorf("route: no readiness predicate for kind %q", k)
		}
		if pred.Selector == "" {
			return fmt.Errorf("route: empty selector for kind %q", k)
		}
	}
	if len(p) != len(Kinds) {
		var extra []string
		for k := range p {
			if _, err := ParseKind(string(k)); err != nil {
				extra = append(extra, string(k))
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("route: predicates registered for unknown kinds %v", extra)
	}
	return nil
}

// Outcome of rendering one route.
type Outcome string

const (
	Success Outcome = "success"
	Skipped Outcome = "skipped" // navigation or readiness timeout
	Failed  Outcome = "failed"  // any other error
)

// Result is produced exactly once per route per run. HTML is set only on
// Success; Detail only on Skipped and Failed.
type Result struct {
	Route    Route         `json:"route"`
	Outcome  Outcome       `json:"outcome"`
	HTML     string        `json:"-"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded builds a Success result.
func Succeeded(r Route, html string, d time.Duration) Result {
	return Result{Route: r, Outcome: Success, HTML: html, Duration: d}
}

// Skip builds a Skipped result.
func Skip(r Route, detail string, d time.Duration) Result {
	return Result{Route: r, Outcome: Skipped, Detail: detail, Duration: d}
}

// Fail builds a Failed result.
func Fail(r Route, detail string, d time.Duration) Result {
	return Result{Route: r, Outcome: Failed, Detail: detail, Duration: d}
}

// Event is what sinks receive for each route once the outcome is final
// (after the output writer ran). The HTML itself is not forwarded.
type Event struct {
	RunID      string        `json:"run_id"`
	Index      int           `json:"index"`
	Route      Route         `json:"route"`
	Outcome    Outcome       `json:"outcome"`
	Detail     string        `json:"detail,omitempty"`
	OutputPath string        `json:"output_path,omitempty"`
	HTMLHash   string        `json:"html_hash,omitempty"`
	Bytes      int           `json:"bytes,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Timestamp  int64         `json:"timestamp"` // epoch milliseconds
}

// Summary closes a run.
type Summary struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Fatal     string    `json:"fatal,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Count adds an outcome to the summary counters.
func (s *Summary) Count(o Outcome) {
	switch o {
	case Success:
		s.Succeeded++
	case Skipped:
		s.Skipped++
	case Failed:
		s.Failed++
	}
}

// HashHTML returns the SHA-256 hex digest of a captured document.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}
