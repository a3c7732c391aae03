// Package verify checks an output tree offline: every resolved route must
// have a snapshot at its mapped path, and that snapshot must satisfy the
// readiness predicate of the route kind.
package verify

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/snapgen/prerender/internal/output"
	"github.com/hazyhaar/snapgen/prerender/internal/probe"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// Status of one verified route.
type Status string

const (
	StatusOK        Status = "ok"
	StatusMissing   Status = "missing"   // no file at the mapped path
	StatusNotReady  Status = "not_ready" // predicate does not hold in the snapshot
	StatusShell     Status = "shell"     // file is the unrendered application shell
	StatusMalformed Status = "malformed" // unparseable document or selector
)

// Check is the verdict for one route.
type Check struct {
	Route  route.Route `json:"route"`
	Path   string      `json:"path"`
	Status Status      `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// Report is the verdict for a whole tree.
type Report struct {
	Checks []Check `json:"checks"`
	OK     int     `json:"ok"`
	Bad    int     `json:"bad"`
}

// Passed reports whether every route checked out.
func (r *Report) Passed() bool { return r.Bad == 0 }

// Tree verifies root against routes. shell is the original application
// shell (nil to skip the comparison); a snapshot byte-identical to it was
// never rendered.
func Tree(root string, routes []route.Route, preds route.Predicates, shell []byte) (*Report, error) {
	if err := preds.Validate(); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	rep := &Report{}
	for _, r := range routes {
		c := checkRoute(root, r, preds[r.Kind], shell)
		if c.Status == StatusOK {
			rep.OK++
		} else {
			rep.Bad++
		}
		rep.Checks = append(rep.Checks, c)
	}
	return rep, nil
}

func checkRoute(root string, r route.Route, pred route.Predicate, shell []byte) Check {
	c := Check{Route: r, Path: output.Path(root, r.Path)}

	data, err := os.ReadFile(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		c.Status = StatusMissing
		return c
	}
	if err != nil {
		c.Status = StatusMalformed
		c.Detail = err.Error()
		return c
	}

	if shell != nil && bytes.Equal(data, shell) {
		c.Status = StatusShell
		c.Detail = "snapshot is identical to the application shell"
		return c
	}

	sel, err := parseSelector(pred.Selector)
	if err != nil {
		c.Status = StatusMalformed
		c.Detail = err.Error()
		return c
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		c.Status = StatusMalformed
		c.Detail = fmt.Sprintf("parse: %v", err)
		return c
	}

	el := sel.find(doc)
	switch {
	case el == nil:
		c.Status = StatusNotReady
		c.Detail = fmt.Sprintf("selector %q not found", pred.Selector)
	case pred.NonEmpty && strings.TrimSpace(text(el)) == "":
		c.Status = StatusNotReady
		c.Detail = fmt.Sprintf("selector %q matched an empty element", pred.Selector)
	default:
		c.Status = StatusOK
		if !probe.IsSufficient(data) {
			c.Detail = "low text density"
		}
	}
	return c
}
