// Package wruntime selects and prepares the execution runtime for a
// worker by file extension: a native Wasm module, a JavaScript engine
// artifact supplied by the caller, or an external language pack from the
// catalog. No JavaScript engine is bundled with this package.
package wruntime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rafbgarcia/wws/internal/catalog"
	"github.com/rafbgarcia/wws/internal/store"
)

var ErrMissingRuntime = errors.New("wruntime: missing runtime")

// Kind tags the closed set of runtime variants.
type Kind int

const (
	Native Kind = iota
	Javascript
	External
)

func (k Kind) String() string {
	switch k {
	case Native:
		return "native"
	case Javascript:
		return "javascript"
	default:
		return "external"
	}
}

// Runtime is implemented by each of the three variants. Prepare runs
// once when a Worker is constructed; PrepareGuestFS returns any
// runtime-owned preopens; ArtifactBytes returns the Wasm to execute.
type Runtime interface {
	Kind() Kind
	Prepare() error
	PrepareGuestFS() []Mount
	ArtifactBytes() ([]byte, error)
	Args() []string
}

// Mount is one guest filesystem preopen contributed by a runtime,
// distinct from the folders a worker's own config declares.
type Mount struct {
	HostPath  string
	GuestPath string
}

// nativeRuntime executes the handler file itself as the Wasm artifact.
type nativeRuntime struct {
	handlerPath string
}

func (r *nativeRuntime) Kind() Kind      { return Native }
func (r *nativeRuntime) Prepare() error  { return nil }
func (r *nativeRuntime) Args() []string  { return nil }
func (r *nativeRuntime) PrepareGuestFS() []Mount { return nil }
func (r *nativeRuntime) ArtifactBytes() ([]byte, error) {
	data, err := os.ReadFile(r.handlerPath)
	if err != nil {
		return nil, fmt.Errorf("wruntime: reading native artifact %s: %w", r.handlerPath, err)
	}
	return data, nil
}

// javascriptRuntime copies the source file into a private store node and
// runs it under the JS engine artifact returned by engine. When engine is
// nil, ArtifactBytes returns an error.
type javascriptRuntime struct {
	handlerPath string
	node        store.Node
	engine      func() ([]byte, error)
}

func (r *javascriptRuntime) Kind() Kind { return Javascript }

func (r *javascriptRuntime) Prepare() error {
	if err := r.node.Create(); err != nil {
		return err
	}
	return r.node.Copy(r.handlerPath, "index.js")
}

func (r *javascriptRuntime) PrepareGuestFS() []Mount {
	return []Mount{{HostPath: r.node.Path(), GuestPath: "/src"}}
}

func (r *javascriptRuntime) Args() []string { return nil }

func (r *javascriptRuntime) ArtifactBytes() ([]byte, error) {
	if r.engine == nil {
		return nil, fmt.Errorf("wruntime: no JavaScript engine artifact supplied for %s", r.handlerPath)
	}
	return r.engine()
}

// externalRuntime materializes the worker source (optionally wrapped)
// alongside any polyfill in a private store node, and executes the
// catalog-installed binary for the matched descriptor.
type externalRuntime struct {
	handlerPath string
	node        store.Node
	repoName    string
	descriptor  catalog.RuntimeDescriptor
	projectRoot string
}

func (r *externalRuntime) Kind() Kind { return External }

func (r *externalRuntime) Prepare() error {
	if err := r.node.Create(); err != nil {
		return err
	}

	ext := strings.TrimPrefix(filepath.Ext(r.handlerPath), ".")
	source, err := os.ReadFile(r.handlerPath)
	if err != nil {
		return fmt.Errorf("wruntime: reading source %s: %w", r.handlerPath, err)
	}

	if r.descriptor.Wrapper != nil {
		wrapperPath := store.New(r.projectRoot, "runtimes", r.repoName, r.descriptor.Name, r.descriptor.Version).Path()
		wrapperBytes, err := os.ReadFile(filepath.Join(wrapperPath, r.descriptor.Wrapper.Filename))
		if err != nil {
			return fmt.Errorf("wruntime: reading wrapper: %w", err)
		}
		rendered := strings.ReplaceAll(string(wrapperBytes), "{source}", string(source))
		if err := r.node.Write([]byte(rendered), "index."+ext); err != nil {
			return err
		}
	} else {
		if err := r.node.Write(source, "index."+ext); err != nil {
			return err
		}
	}

	if r.descriptor.Polyfill != nil {
		polyfillDir := store.New(r.projectRoot, "runtimes", r.repoName, r.descriptor.Name, r.descriptor.Version).Path()
		if err := r.node.Copy(filepath.Join(polyfillDir, r.descriptor.Polyfill.Filename), r.descriptor.Polyfill.Filename); err != nil {
			return fmt.Errorf("wruntime: copying polyfill: %w", err)
		}
	}
	return nil
}

func (r *externalRuntime) PrepareGuestFS() []Mount {
	return []Mount{{HostPath: r.node.Path(), GuestPath: "/src"}}
}

func (r *externalRuntime) Args() []string { return r.descriptor.Args }

func (r *externalRuntime) ArtifactBytes() ([]byte, error) {
	dir := store.New(r.projectRoot, "runtimes", r.repoName, r.descriptor.Name, r.descriptor.Version)
	return dir.Read(r.descriptor.Binary.Filename)
}

// Select picks a Runtime for handlerPath. jsEngine supplies the
// JavaScript engine artifact bytes for the Javascript variant; it may be
// nil, in which case a .js worker fails when its artifact is read.
func Select(projectRoot, handlerPath string, cat *catalog.Catalog, jsEngine func() ([]byte, error)) (Runtime, error) {
	ext := strings.TrimPrefix(filepath.Ext(handlerPath), ".")
	workerNode := store.New(projectRoot, "workers", workerScratchID(handlerPath))

	switch ext {
	case "js":
		return &javascriptRuntime{handlerPath: handlerPath, node: workerNode, engine: jsEngine}, nil
	case "wasm":
		return &nativeRuntime{handlerPath: handlerPath}, nil
	default:
		for _, repo := range cat.Repositories {
			if rt, ok := findExtension(repo, ext); ok {
				return &externalRuntime{
					handlerPath: handlerPath,
					node:        workerNode,
					repoName:    repo.Name,
					descriptor:  rt,
					projectRoot: projectRoot,
				}, nil
			}
		}
		return nil, fmt.Errorf("%w: no runtime registered for extension %q", ErrMissingRuntime, ext)
	}
}

func findExtension(repo catalog.Repository, ext string) (catalog.RuntimeDescriptor, bool) {
	for _, rt := range repo.Runtimes {
		if rt.HasExtension(ext) {
			return rt, true
		}
	}
	return catalog.RuntimeDescriptor{}, false
}

// workerScratchID derives a stable store-segment name for a handler's
// private scratch node.
func workerScratchID(handlerPath string) string {
	h := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(handlerPath)
	return strings.TrimPrefix(h, "_")
}
