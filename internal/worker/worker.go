// Package worker models a prepared, ready-to-invoke handler: its source
// artifact, configuration, and selected runtime, held in a process-wide
// registry populated once at startup. Artifacts are not compiled here;
// the execution core compiles them on each invocation.
package worker

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/rafbgarcia/wws/internal/workerconfig"
	"github.com/rafbgarcia/wws/internal/wruntime"
)

var (
	ErrBadWasmCoreModule            = errors.New("worker: bad wasm core module")
	ErrBadWasmComponent             = errors.New("worker: bad wasm component")
	ErrBadWasmCoreModuleOrComponent = errors.New("worker: artifact is neither a core module nor a component")
)

// ArtifactKind tags the two Wasm binary flavors ExecutionCore can run.
type ArtifactKind int

const (
	CoreModule ArtifactKind = iota
	Component
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}
var coreModuleVersion = []byte{0x01, 0x00, 0x00, 0x00}

// DetectArtifactKind inspects the WebAssembly preamble (the 4-byte magic
// number followed by a 4-byte version/layer field) to distinguish a core
// module from a component. Core modules declare version 1, layer 0;
// components encode a non-zero layer in the high half of that field.
func DetectArtifactKind(data []byte) (ArtifactKind, error) {
	if len(data) < 8 || !bytes.Equal(data[:4], wasmMagic) {
		return 0, ErrBadWasmCoreModuleOrComponent
	}
	version := data[4:8]
	switch {
	case bytes.Equal(version, coreModuleVersion):
		return CoreModule, nil
	case version[2] != 0x00 || version[3] != 0x00:
		return Component, nil
	default:
		return 0, ErrBadWasmCoreModuleOrComponent
	}
}

// Worker is an immutable, fully-prepared handler: its id, source path,
// configuration, runtime, detected artifact kind, and raw artifact bytes.
type Worker struct {
	ID          string
	HandlerPath string
	Config      workerconfig.Config
	Runtime     wruntime.Runtime
	Kind        ArtifactKind
	Artifact    []byte
}

// New builds a Worker: runs the runtime's one-shot Prepare, reads its
// artifact bytes, and detects whether they are a core module or a
// component.
func New(id, handlerPath string, cfg workerconfig.Config, rt wruntime.Runtime) (*Worker, error) {
	if err := rt.Prepare(); err != nil {
		return nil, fmt.Errorf("worker: preparing runtime for %s: %w", handlerPath, err)
	}

	artifact, err := rt.ArtifactBytes()
	if err != nil {
		return nil, fmt.Errorf("worker: reading artifact for %s: %w", handlerPath, err)
	}

	kind, err := DetectArtifactKind(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, handlerPath)
	}

	return &Worker{
		ID:          id,
		HandlerPath: handlerPath,
		Config:      cfg,
		Runtime:     rt,
		Kind:        kind,
		Artifact:    artifact,
	}, nil
}

// Registry is the process-wide WORKERS table: read-mostly, populated
// once at startup, protected by a readers-writer discipline so embedders
// and tests can construct their own instance rather than relying on a
// package-level global.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Worker)}
}

// Add registers w under its own id. Intended for the startup phase only.
func (r *Registry) Add(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.ID] = w
}

// Get looks up a Worker by id.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// All returns every registered Worker. The slice is a fresh copy; the
// registry's own map is never exposed.
func (r *Registry) All() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out
}
