// Package scanner walks a project root for worker handler files, selecting
// them by extension and honoring ignore glob patterns and the reserved "_"
// and ".wws" prefixes.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnores are applied in addition to any caller-supplied ignore
// patterns: public assets, the store directory, and any path with a
// leading-underscore component (a reserved "hidden to router" marker).
var DefaultIgnores = []string{
	"**/public/**",
	"**/.wws/**",
	"**/_*/**",
}

// Scanner walks root for files whose extension is one of extensions
// (plus the always-recognized js and wasm), skipping anything matched by
// DefaultIgnores or the caller's own ignore patterns.
type Scanner struct {
	Root       string
	Extensions []string
	Ignore     []string
}

// New builds a Scanner for root recognizing the given extra extensions
// (beyond js and wasm) and ignore patterns.
func New(root string, extensions, ignore []string) *Scanner {
	return &Scanner{Root: root, Extensions: extensions, Ignore: ignore}
}

// Scan returns the absolute paths of every matching file under Root.
// Ordering is unspecified; callers sort via the router's total order.
func (s *Scanner) Scan() ([]string, error) {
	exts := append([]string{"js", "wasm"}, s.Extensions...)
	ignore := append(append([]string{}, DefaultIgnores...), s.Ignore...)

	var hits []string
	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !hasMatchingExtension(rel, exts) {
			return nil
		}
		if matchesAny(ignore, rel) {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		hits = append(hits, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: walking %s: %w", s.Root, err)
	}
	return hits, nil
}

func hasMatchingExtension(rel string, exts []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(rel), ".")
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
