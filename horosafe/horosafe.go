// Package horosafe provides the security primitives shared by the prerender
// components: URL path sanitation, path traversal guards, identifier
// validation, and bounded I/O helpers.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxDocumentBody caps reads of a served HTML document (10 MiB).
const MaxDocumentBody int64 = 10 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// CleanURLPath neutralises a request path before it is resolved on disk.
// Backslashes are treated as separators and every empty, "." and ".."
// segment is dropped, so the result is always rooted and never climbs.
//
//	CleanURLPath("/../../secret") == "/secret"
//	CleanURLPath("/a/./b//c/")    == "/a/b/c"
func CleanURLPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, s := range parts {
		if s == "" || s == "." || s == ".." {
			continue
		}
		kept = append(kept, s)
	}
	return "/" + strings.Join(kept, "/")
}

// SafePath validates that joining base and userInput does not escape base.
// Any ".." segment is rejected; dots inside a name ("chunk..js") are not.
// Returns the cleaned absolute path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	for _, seg := range strings.Split(strings.ReplaceAll(userInput, "\\", "/"), "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	cleanBase := filepath.Clean(base)
	cleaned := filepath.Join(cleanBase, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, cleanBase+string(filepath.Separator)) &&
		cleaned != cleanBase {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateIdentifier rejects identifiers that contain characters unsuitable
// for file names or URL path segments. Allows alphanumeric, underscore,
// hyphen, and dot; the pure-dot names "." and ".." are rejected.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("horosafe: identifier too long (max 256)")
	}
	if strings.Trim(s, ".") == "" {
		return fmt.Errorf("horosafe: identifier %q is a relative path element", s)
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r. Returns an error if the
// limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("horosafe: response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
