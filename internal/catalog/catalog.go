// Package catalog models the local .wws.toml state and the remote
// runtime index it tracks: loading and persisting installed runtime
// metadata, fetching a remote index, and installing/uninstalling
// runtimes with checksum verification.
package catalog

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rafbgarcia/wws/internal/store"
)

// SupportedIndexVersion is the highest .wws.toml / index schema version
// this catalog understands without a compatibility warning.
const SupportedIndexVersion = 1

var (
	ErrInvalidURL             = errors.New("catalog: invalid url")
	ErrHTTP                   = errors.New("catalog: http error")
	ErrInvalidChecksum        = errors.New("catalog: invalid checksum")
	ErrUnsupportedIndexVersion = errors.New("catalog: unsupported index version")
)

// Checksum identifies the hash algorithm and expected value for a
// RemoteFile. Only sha256 is modeled; the type tag is kept for parity
// with the wire format's `type` field.
type Checksum struct {
	Type  string `toml:"type"`
	Value string `toml:"value"`
}

// RemoteFile is one downloadable asset belonging to a RuntimeDescriptor.
type RemoteFile struct {
	URL      string   `toml:"url"`
	Filename string   `toml:"filename"`
	Checksum Checksum `toml:"checksum"`
}

// RuntimeDescriptor identifies one installable language pack.
type RuntimeDescriptor struct {
	Name       string            `toml:"name"`
	Version    string            `toml:"version"`
	Tags       []string          `toml:"tags"`
	Status     string            `toml:"status"`
	Extensions []string          `toml:"extensions"`
	Args       []string          `toml:"args"`
	HostEnv    []string          `toml:"host_env"`
	Binary     RemoteFile        `toml:"binary"`
	Polyfill   *RemoteFile       `toml:"polyfill"`
	Wrapper    *RemoteFile       `toml:"wrapper"`
	Template   *RemoteFile       `toml:"template"`
}

// Equal implements the descriptor equality rule: (name, version).
func (d RuntimeDescriptor) Equal(other RuntimeDescriptor) bool {
	return d.Name == other.Name && d.Version == other.Version
}

// HasExtension reports whether ext is one of the descriptor's extensions.
func (d RuntimeDescriptor) HasExtension(ext string) bool {
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Repository is a named source of runtime descriptors.
type Repository struct {
	Name     string              `toml:"name"`
	URL      string              `toml:"url"`
	Runtimes []RuntimeDescriptor `toml:"runtimes"`
}

// Catalog is the persisted state of installed runtimes: loaded from and
// saved to <project_root>/.wws.toml.
type Catalog struct {
	Version      int          `toml:"version"`
	Repositories []Repository `toml:"repositories"`

	root string
}

// Load reads <root>/.wws.toml. A missing file yields an empty Catalog,
// not an error.
func Load(root string) (*Catalog, error) {
	path := filepath.Join(root, ".wws.toml")
	c := &Catalog{Version: SupportedIndexVersion, root: root}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: loading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	c.root = root
	return c, nil
}

// Save persists the catalog to <root>/.wws.toml.
func (c *Catalog) Save() error {
	path := filepath.Join(c.root, ".wws.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("catalog: saving %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// indexDocument is the wire shape of a remote repository index file.
type indexDocument struct {
	Version  int                 `toml:"version"`
	Name     string              `toml:"name"`
	Runtimes []RuntimeDescriptor `toml:"runtimes"`
}

// FetchIndex downloads and parses a remote repository index. A version
// greater than SupportedIndexVersion is accepted; the returned warning
// error is non-nil in that case but the Repository is still usable.
func FetchIndex(url string, userAgent string) (Repository, error, error) {
	if url == "" {
		return Repository{}, nil, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return Repository{}, nil, fmt.Errorf("%w: %s: %v", ErrInvalidURL, url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Repository{}, nil, fmt.Errorf("%w: %s: %v", ErrHTTP, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Repository{}, nil, fmt.Errorf("%w: %s: status %d", ErrHTTP, url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Repository{}, nil, fmt.Errorf("%w: %s: %v", ErrHTTP, url, err)
	}

	var doc indexDocument
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Repository{}, nil, fmt.Errorf("catalog: parsing index %s: %w", url, err)
	}

	repo := Repository{Name: doc.Name, URL: url, Runtimes: doc.Runtimes}

	var warning error
	if doc.Version > SupportedIndexVersion {
		warning = fmt.Errorf("%w: index version %d > supported %d", ErrUnsupportedIndexVersion, doc.Version, SupportedIndexVersion)
	}
	return repo, warning, nil
}

// Find returns the RuntimeDescriptor matching extension ext across all
// repositories, if one is installed or known.
func (c *Catalog) Find(ext string) (RuntimeDescriptor, bool) {
	for _, repo := range c.Repositories {
		for _, rt := range repo.Runtimes {
			if rt.HasExtension(ext) {
				return rt, true
			}
		}
	}
	return RuntimeDescriptor{}, false
}

// Register adds or replaces a repository in the catalog by name.
func (c *Catalog) Register(repo Repository) {
	for i, existing := range c.Repositories {
		if existing.Name == repo.Name {
			c.Repositories[i] = repo
			return
		}
	}
	c.Repositories = append(c.Repositories, repo)
}

// runtimeDir returns the store-relative path for an installed runtime:
// store/runtimes/<repo>/<name>/<version>.
func runtimeDir(repoName string, rt RuntimeDescriptor) []string {
	return []string{"runtimes", repoName, rt.Name, rt.Version}
}

// IsInstalled reports whether every required RemoteFile for rt is
// present on disk under the store.
func IsInstalled(root, repoName string, rt RuntimeDescriptor) bool {
	node := store.New(root, runtimeDir(repoName, rt)...)
	if !node.Exists(rt.Binary.Filename) {
		return false
	}
	for _, f := range []*RemoteFile{rt.Polyfill, rt.Wrapper, rt.Template} {
		if f != nil && !node.Exists(f.Filename) {
			return false
		}
	}
	return true
}

// Install downloads every RemoteFile attached to rt (binary, and any of
// polyfill/wrapper/template present), verifies each against its declared
// checksum, and writes verified files into the store. A checksum mismatch
// aborts before anything is written for that file; files already written
// for earlier entries are left in place (installs are not transactional,
// matching the source's file-presence IsInstalled check: a later retry
// will find the gap and redownload only what's missing).
func Install(root, repoName string, rt RuntimeDescriptor, userAgent string) error {
	if rt.Status == "yanked" || rt.Status == "deprecated" {
		fmt.Fprintf(os.Stderr, "warning: installing %s %s status=%s\n", rt.Name, rt.Version, rt.Status)
	}

	node := store.New(root, runtimeDir(repoName, rt)...)
	if err := node.Create(); err != nil {
		return err
	}

	files := []RemoteFile{rt.Binary}
	for _, f := range []*RemoteFile{rt.Polyfill, rt.Wrapper, rt.Template} {
		if f != nil {
			files = append(files, *f)
		}
	}

	for _, f := range files {
		if err := installOne(node, f, userAgent); err != nil {
			return err
		}
	}
	return nil
}

func installOne(node store.Node, f RemoteFile, userAgent string) error {
	req, err := http.NewRequest(http.MethodGet, f.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidURL, f.URL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHTTP, f.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: status %d", ErrHTTP, f.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHTTP, f.URL, err)
	}

	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	want := f.Checksum.Value
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%w: %s: got %s want %s", ErrInvalidChecksum, f.Filename, got, want)
	}

	return node.Write(data, f.Filename)
}

// Uninstall removes the on-disk directory for rt.
func Uninstall(root, repoName string, rt RuntimeDescriptor) error {
	return store.New(root, runtimeDir(repoName, rt)...).Delete()
}
