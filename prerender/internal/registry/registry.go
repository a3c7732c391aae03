// Package registry derives the ordered list of routes to snapshot from a
// content manifest and a fixed set of structural routes.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/hazyhaar/snapgen/horosafe"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// Entry is one manifest record. Only the identifier field is read; every
// other field stays opaque.
type Entry map[string]json.RawMessage

// LoadManifest reads a JSON array of content entries. A missing or empty
// file yields no entries and no error. Malformed JSON is an error.
func LoadManifest(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest bytes.
func ParseManifest(data []byte) ([]Entry, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("registry: parse manifest: %w", err)
	}
	return entries, nil
}

// Options controls how entries become routes.
type Options struct {
	IDField      string // default "slug"
	DetailPrefix string // default "/blog/"
	Logger       *slog.Logger
}

func (o *Options) defaults() {
	if o.IDField == "" {
		o.IDField = "slug"
	}
	if o.DetailPrefix == "" {
		o.DetailPrefix = "/blog/"
	}
	if !strings.HasPrefix(o.DetailPrefix, "/") {
		o.DetailPrefix = "/" + o.DetailPrefix
	}
	if !strings.HasSuffix(o.DetailPrefix, "/") {
		o.DetailPrefix += "/"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Resolve returns structural routes first, then one detail route per
// manifest entry in manifest order. Paths are unique: later duplicates are
// dropped. Entries without a usable identifier are skipped with a warning.
func Resolve(entries []Entry, structural []route.Route, opts Options) []route.Route {
	opts.defaults()

	out := make([]route.Route, 0, len(structural)+len(entries))
	seen := make(map[string]bool, cap(out))
	add := func(r route.Route) {
		if seen[r.Path] {
			opts.Logger.Debug("registry: duplicate route dropped", "route", r.Path)
			return
		}
		seen[r.Path] = true
		out = append(out, r)
	}

	for _, r := range structural {
		add(route.Route{Path: NormalizePath(r.Path), Kind: r.Kind})
	}

	for i, e := range entries {
		id, err := identifier(e, opts.IDField)
		if err != nil {
			opts.Logger.Warn("registry: manifest entry skipped",
				"index", i, "field", opts.IDField, "error", err)
			continue
		}
		add(route.Route{Path: opts.DetailPrefix + id, Kind: route.KindDetail})
	}
	return out
}

func identifier(e Entry, field string) (string, error) {
	raw, ok := e[field]
	if !ok {
		return "", fmt.Errorf("missing field %q", field)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("field %q is not a string", field)
	}
	id = strings.TrimSpace(id)
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return "", err
	}
	return id, nil
}

// NormalizePath gives a route path a single leading slash and no trailing
// slash, "/" excepted.
func NormalizePath(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	return p
}
