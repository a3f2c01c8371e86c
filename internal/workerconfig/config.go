// Package workerconfig loads the optional per-worker TOML configuration
// sitting alongside a handler file, including $ENV variable substitution
// and feature-flag defaults.
package workerconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	ErrCouldNotLoadConfig  = errors.New("workerconfig: could not load config")
	ErrCouldNotParseConfig = errors.New("workerconfig: could not parse config")
)

// Folder is one filesystem preopen: host_path (relative to the worker's
// own directory) mounted at guest_path.
type Folder struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// HTTPRequests is the guest HTTP-egress policy.
type HTTPRequests struct {
	AllowedHosts   []string `toml:"allowed_hosts"`
	AllowedMethods []string `toml:"allowed_methods"`
	ForceHTTPS     bool     `toml:"force_https"`
}

// DefaultHTTPRequests matches the allow-list defaults observed in the
// original worker config: everything denied by host, the conventional
// write/read method set (notably excluding OPTIONS and HEAD), and HTTPS
// required.
func DefaultHTTPRequests() HTTPRequests {
	return HTTPRequests{
		AllowedHosts:   []string{},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		ForceHTTPS:     true,
	}
}

// WasiNN is the optional ML-inference feature surface. It is parsed from
// the worker's TOML only: the execution core does not read it, preload
// models, or give the guest any WASI-NN binding.
type WasiNN struct {
	AllowedBackends []string          `toml:"allowed_backends"`
	PreloadModels   map[string]string `toml:"preload_models"`
}

// Features groups the optional capability flags a worker can request.
type Features struct {
	HTTPRequests HTTPRequests `toml:"http_requests"`
	WasiNN       WasiNN       `toml:"wasi_nn"`
}

// Data groups the data-plane feature flags, currently just the KV
// namespace: a plain string under [data.kv], where an empty value means
// the worker has no namespace.
type Data struct {
	KV struct {
		Namespace string `toml:"namespace"`
	} `toml:"kv"`
}

// Config is a worker's full declarative configuration.
type Config struct {
	Name     string            `toml:"name"`
	Version  string            `toml:"version"`
	Data     Data              `toml:"data"`
	Folders  []Folder          `toml:"folders"`
	Vars     map[string]string `toml:"vars"`
	Features Features          `toml:"features"`
}

// Default returns the configuration a worker has when no sibling TOML
// file is present: every feature off, no env, no preopens, no KV
// namespace, version "dev".
func Default() Config {
	return Config{
		Version:  "dev",
		Features: Features{HTTPRequests: DefaultHTTPRequests()},
	}
}

// KVNamespace reports the worker's KV namespace and whether one is set.
func (c Config) KVNamespace() (string, bool) {
	if c.Data.KV.Namespace == "" {
		return "", false
	}
	return c.Data.KV.Namespace, true
}

// Load reads the sibling "<handler>.toml" for handlerPath, if it exists.
// A missing file is not an error: it yields Default(). Folder paths are
// normalized to the host separator at load time. Env values are
// substituted from the host process environment.
func Load(handlerPath string) (Config, error) {
	configPath := strings.TrimSuffix(handlerPath, filepath.Ext(handlerPath)) + ".toml"

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrCouldNotLoadConfig, configPath, err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrCouldNotParseConfig, configPath, err)
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	normalizeFolders(&cfg)
	substituteEnv(cfg.Vars)
	return cfg, nil
}

// normalizeFolders rewrites each Folder.From so both "/" and "\" are
// accepted in the TOML file and stored using the host's native separator.
func normalizeFolders(cfg *Config) {
	for i, f := range cfg.Folders {
		parts := strings.FieldsFunc(f.From, func(r rune) bool { return r == '/' || r == '\\' })
		cfg.Folders[i].From = filepath.Join(parts...)
	}
}

// substituteEnv rewrites values in-place: a value starting with "$" and
// containing no whitespace is replaced by the corresponding host
// environment variable (empty string if unset). Any other value,
// including "$FOO bar" (contains a space) or "FOO" (no leading "$"),
// passes through unchanged.
func substituteEnv(vars map[string]string) {
	for k, v := range vars {
		if strings.HasPrefix(v, "$") && !strings.ContainsAny(v, " \t\n") {
			vars[k] = os.Getenv(strings.TrimPrefix(v, "$"))
		}
	}
}
