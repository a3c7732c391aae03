// Package output maps routes to files under the output root and persists
// captured documents atomically.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/snapgen/horosafe"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// IndexFile is the document name written for every route.
const IndexFile = "index.html"

// Path maps a route path to its snapshot file. "/" maps to root/index.html,
// "/blog/foo" to root/blog/foo/index.html.
func Path(root, routePath string) string {
	rel := strings.Trim(routePath, "/")
	if rel == "" {
		return filepath.Join(root, IndexFile)
	}
	return filepath.Join(root, filepath.FromSlash(rel), IndexFile)
}

// Writer persists snapshots under Root.
type Writer struct {
	Root string
}

// NewWriter creates a Writer for root.
func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

// Write stores html at the route's output path and returns that path.
// Intermediate directories are created; an existing file is replaced.
// A route path that would climb out of Root is refused.
func (w *Writer) Write(r route.Route, html string) (string, error) {
	if _, err := horosafe.SafePath(w.Root, r.Path); err != nil {
		return "", fmt.Errorf("output: write %s: %w", r.Path, err)
	}
	dst := Path(w.Root, r.Path)
	if err := WriteFileAtomic(dst, []byte(html)); err != nil {
		return "", fmt.Errorf("output: write %s: %w", r.Path, err)
	}
	return dst, nil
}

// WriteFileAtomic writes data to a temporary file in dst's directory, syncs
// it and renames it over dst. A reader never sees a truncated dst.
func WriteFileAtomic(dst string, data []byte) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
