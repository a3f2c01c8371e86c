package workerconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHTTPRequests(t *testing.T) {
	d := DefaultHTTPRequests()
	if len(d.AllowedHosts) != 0 {
		t.Errorf("AllowedHosts = %v, want empty", d.AllowedHosts)
	}
	if !d.ForceHTTPS {
		t.Errorf("ForceHTTPS = false, want true")
	}
	for _, m := range []string{"OPTIONS", "HEAD"} {
		for _, got := range d.AllowedMethods {
			if got == m {
				t.Errorf("AllowedMethods unexpectedly includes %s", m)
			}
		}
	}
}

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	dir := t.TempDir()
	handler := filepath.Join(dir, "index.wasm")
	if err := os.WriteFile(handler, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(handler)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := cfg.KVNamespace(); ok {
		t.Errorf("KVNamespace() ok = true, want false for default config")
	}
	if cfg.Version != "dev" {
		t.Errorf("Version = %q, want dev", cfg.Version)
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("FOO", "bar")
	vars := map[string]string{
		"a": "$FOO",
		"b": "$FOO bar",
		"c": "FOO",
		"d": "$MISSING",
	}
	substituteEnv(vars)

	want := map[string]string{"a": "bar", "b": "$FOO bar", "c": "FOO", "d": ""}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("vars[%q] = %q, want %q", k, vars[k], v)
		}
	}
}

func TestLoadParsesTOMLAndSubstitutesEnv(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	dir := t.TempDir()
	handler := filepath.Join(dir, "index.wasm")
	toml := `
version = "1.0.0"
[data.kv]
namespace = "todos"
[vars]
key = "$API_KEY"
[features.http_requests]
allowed_hosts = ["api.example.com"]
allowed_methods = ["GET"]
force_https = true
`
	if err := os.WriteFile(filepath.Join(dir, "index.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(handler, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(handler)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ns, ok := cfg.KVNamespace()
	if !ok || ns != "todos" {
		t.Errorf("KVNamespace() = %q, %v, want todos, true", ns, ok)
	}
	if cfg.Vars["key"] != "secret" {
		t.Errorf("Vars[key] = %q, want secret", cfg.Vars["key"])
	}
	if len(cfg.Features.HTTPRequests.AllowedHosts) != 1 || cfg.Features.HTTPRequests.AllowedHosts[0] != "api.example.com" {
		t.Errorf("AllowedHosts = %v", cfg.Features.HTTPRequests.AllowedHosts)
	}
}

func TestNormalizeFoldersAcceptsBothSeparators(t *testing.T) {
	cfg := Config{Folders: []Folder{{From: "a/b\\c"}, {From: "a\\b/c"}}}
	normalizeFolders(&cfg)
	if cfg.Folders[0].From != cfg.Folders[1].From {
		t.Errorf("normalizeFolders not separator-agnostic: %q != %q", cfg.Folders[0].From, cfg.Folders[1].From)
	}
}
