package scanner

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
)

func write(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func relAll(t *testing.T, root string, hits []string) []string {
	t.Helper()
	var rels []string
	for _, h := range hits {
		rel, err := filepath.Rel(root, h)
		if err != nil {
			t.Fatalf("Rel: %v", err)
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	sort.Strings(rels)
	return rels
}

func TestScanFindsRecognizedExtensions(t *testing.T) {
	root := t.TempDir()
	write(t, root, "index.wasm")
	write(t, root, "api/ping.js")
	write(t, root, "api/hello.rb")
	write(t, root, "README.md")

	s := New(root, []string{"rb"}, nil)
	hits, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	got := relAll(t, root, hits)
	want := []string{"api/hello.rb", "api/ping.js", "index.wasm"}
	if !slices.Equal(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestScanSkipsDefaultIgnores(t *testing.T) {
	root := t.TempDir()
	write(t, root, "index.wasm")
	write(t, root, "public/logo.wasm")
	write(t, root, ".wws/runtimes/ruby.wasm")
	write(t, root, "_private/helper.wasm")

	s := New(root, nil, nil)
	hits, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	got := relAll(t, root, hits)
	want := []string{"index.wasm"}
	if !slices.Equal(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestScanHonorsCallerIgnore(t *testing.T) {
	root := t.TempDir()
	write(t, root, "index.wasm")
	write(t, root, "drafts/wip.wasm")

	s := New(root, nil, []string{"**/drafts/**"})
	hits, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	got := relAll(t, root, hits)
	want := []string{"index.wasm"}
	if !slices.Equal(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}
