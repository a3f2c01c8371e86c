package router

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"
)

// Kind classifies a Route by the presence of parameter or tail segments.
type Kind int

const (
	Static Kind = iota
	Dynamic
	Tail
)

// Route binds one handler file to a canonical URL pattern.
type Route struct {
	HandlerPath  string // absolute filesystem path
	URLPath      string // canonical URL pattern, e.g. "/a/[b]/[...c]"
	Kind         Kind
	Segments     []Segment
	SegmentCount int
	WorkerID     string
}

// NewRoute derives a Route from a handler file found under base at
// filePath, rooted under the given URL prefix.
func NewRoute(base, filePath, prefix string) Route {
	urlPath := Canonicalize(base, filePath, prefix)
	segs := parseSegments(urlPath)
	return Route{
		HandlerPath:  filePath,
		URLPath:      urlPath,
		Kind:         classify(urlPath),
		Segments:     segs,
		SegmentCount: strings.Count(urlPath, "/"),
		WorkerID:     workerID(filePath),
	}
}

// workerID is a content-hash of the absolute handler path: stable across
// restarts given the same path, independent of file contents so a worker
// keeps its identity across edits to its own source.
func workerID(absHandlerPath string) string {
	sum := sha256.Sum256([]byte(absHandlerPath))
	return hex.EncodeToString(sum[:])
}

// NormalizePrefix replaces backslashes with "/", ensures a leading "/"
// when non-empty, and strips any trailing "/".
func NormalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	p := strings.ReplaceAll(prefix, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

// Canonicalize derives the canonical url_path for filePath (found under
// base) rooted at prefix: drop the extension, keep only normal path
// components that are not literally "index", prepend "/" to each, and
// finally prepend prefix. An empty result becomes "/".
func Canonicalize(base, filePath, prefix string) string {
	rel, err := filepath.Rel(base, filePath)
	if err != nil {
		rel = filePath
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))

	var b strings.Builder
	for _, comp := range strings.Split(rel, "/") {
		if comp == "" || comp == "." || comp == "index" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(comp)
	}

	out := NormalizePrefix(prefix) + b.String()
	if out == "" {
		return "/"
	}
	return out
}

// classify determines Static/Dynamic/Tail from a canonical url_path.
func classify(urlPath string) Kind {
	switch {
	case strings.Contains(urlPath, "/[..."):
		return Tail
	case strings.Contains(urlPath, "/["):
		return Dynamic
	default:
		return Static
	}
}
