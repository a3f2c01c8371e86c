// Package execution implements the per-request WebAssembly guest
// invocation: building a fresh guest environment (filesystem preopens,
// environment variables, stdio, host capability bindings), invoking the
// artifact under the ABI matching its detected kind, and marshaling the
// request/response.
package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/rafbgarcia/wws/internal/httpegress"
	"github.com/rafbgarcia/wws/internal/kv"
	"github.com/rafbgarcia/wws/internal/worker"
	"github.com/rafbgarcia/wws/internal/workerconfig"
)

var (
	ErrConfigureRuntime              = errors.New("execution: could not configure runtime")
	ErrWorkerBodyRead                = errors.New("execution: could not read worker body")
	ErrRuntimeError                  = errors.New("execution: runtime error")
	ErrComponentExecutionUnsupported = errors.New("execution: component execution is not supported by this runtime")
)

// Component support is deliberately narrow: wazero has no Component
// Model linker at the version this repo pins, so a Component-kind
// worker only runs if extractEmbeddedCoreModule can find a single plain
// core module wrapped inside it with no preview2 adapter swapped in.
// A component with no embedded core module, or more than one, surfaces
// as ErrComponentExecutionUnsupported. Other top-level sections,
// including nested sub-components, are skipped, and imports of the
// embedded module are not inspected: one that needs a canonical-ABI
// import fails at instantiation as ErrRuntimeError.

// MaxResponseBytes bounds the captured stdout buffer; a larger response
// is reported as ErrWorkerBodyRead rather than silently truncated.
const MaxResponseBytes = 32 << 20

// Request is everything the Dispatcher knows about an incoming HTTP
// request, already reduced to the fields the guest ABI needs.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Params  map[string]string
}

// Result is the outcome of one invocation: the guest's declared response.
// The guest's KV snapshot is not part of it; Invoke commits that itself.
type Result struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Core builds and runs one guest instance per invocation. It holds
// process-lifetime resources only: the wazero runtime, the HTTP egress
// host, and the KV layer that successful invocations commit to.
type Core struct {
	runtime  wazero.Runtime
	httpHost *httpegress.Host
	kvLayer  *kv.Layer
}

// New builds a Core. ctx is used only for the one-time wazero runtime
// construction; per-request contexts are supplied to Invoke.
func New(ctx context.Context, kvLayer *kv.Layer) (*Core, error) {
	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return nil, fmt.Errorf("execution: instantiating wasi: %w", err)
	}

	core := &Core{runtime: runtime, httpHost: httpegress.NewHost(), kvLayer: kvLayer}
	if err := core.registerHTTPEgressHost(ctx); err != nil {
		return nil, fmt.Errorf("execution: registering http egress host: %w", err)
	}
	return core, nil
}

// Close releases the shared wazero runtime.
func (c *Core) Close(ctx context.Context) error {
	return c.runtime.Close(ctx)
}

// Invoke instantiates a fresh guest for w, serves one request, and
// extracts its response. On success, and only on success, it commits the
// worker's KV namespace if one is configured.
func (c *Core) Invoke(ctx context.Context, w *worker.Worker, req Request) (Result, error) {
	artifact := w.Artifact
	if w.Kind == worker.Component {
		coreModule, err := extractEmbeddedCoreModule(w.Artifact)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrComponentExecutionUnsupported, err)
		}
		artifact = coreModule
	}

	var kvSnapshot map[string]string
	namespace, hasKV := w.Config.KVNamespace()
	if hasKV {
		kvSnapshot = c.kvLayer.FindStore(namespace)
	} else {
		kvSnapshot = map[string]string{}
	}

	input := Input{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Body:    decodeBodyForInput(req.Body),
		KV:      kvSnapshot,
		Params:  req.Params,
	}
	inputBytes, err := json.Marshal(input)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encoding input: %v", ErrConfigureRuntime, err)
	}

	stdout := &boundedBuffer{limit: MaxResponseBytes}
	moduleConfig, closePreopens, err := c.buildModuleConfig(w, bytes.NewReader(inputBytes), stdout)
	if err != nil {
		return Result{}, err
	}
	defer closePreopens()

	compiled, err := c.runtime.CompileModule(ctx, artifact)
	if err != nil {
		return Result{}, fmt.Errorf("%w: compiling module: %v", ErrConfigureRuntime, err)
	}
	defer compiled.Close(ctx)

	ctx = context.WithValue(ctx, egressPolicyKey{}, w.Config.Features.HTTPRequests)
	mod, err := c.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !(errors.As(err, &exitErr) && exitErr.ExitCode() == 0) {
			return Result{}, fmt.Errorf("%w: %v", ErrRuntimeError, err)
		}
	}

	if stdout.overflowed {
		return Result{}, ErrWorkerBodyRead
	}

	var output Output
	if err := json.Unmarshal(stdout.buf.Bytes(), &output); err != nil {
		return Result{}, fmt.Errorf("%w: decoding output: %v", ErrWorkerBodyRead, err)
	}

	body, err := decodeOutputData(output)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerBodyRead, err)
	}

	if hasKV {
		c.kvLayer.ReplaceStore(namespace, output.KV)
	}

	return Result{Status: output.Status, Headers: output.Headers, Body: body}, nil
}

// buildModuleConfig assembles stdio, env, args, and filesystem preopens
// for one invocation: worker-config folders resolved relative to the
// handler's own directory, then the runtime's own mounts.
func (c *Core) buildModuleConfig(w *worker.Worker, stdin *bytes.Reader, stdout *boundedBuffer) (wazero.ModuleConfig, func(), error) {
	cfg := wazero.NewModuleConfig().
		WithStdin(stdin).
		WithStdout(stdout).
		WithStderr(stderrWriter{}).
		WithArgs(append([]string{"wws"}, w.Runtime.Args()...)...)

	for k, v := range w.Config.Vars {
		cfg = cfg.WithEnv(k, v)
	}

	fsConfig := wazero.NewFSConfig()
	handlerDir := filepath.Dir(w.HandlerPath)
	for _, folder := range w.Config.Folders {
		host := filepath.Join(handlerDir, folder.From)
		fsConfig = fsConfig.WithDirMount(host, folder.To)
	}
	for _, mount := range w.Runtime.PrepareGuestFS() {
		fsConfig = fsConfig.WithDirMount(mount.HostPath, mount.GuestPath)
	}
	cfg = cfg.WithFSConfig(fsConfig)

	return cfg, func() {}, nil
}

// decodeBodyForInput turns a request body into the guest-facing string:
// invalid UTF-8 becomes an empty body string rather than a lossy or
// escaped encoding.
func decodeBodyForInput(body []byte) string {
	if !utf8.Valid(body) {
		return ""
	}
	return string(body)
}

// decodeOutputData turns an Output's data field into response bytes,
// base64-decoding it when the guest declared base64:true.
func decodeOutputData(output Output) ([]byte, error) {
	if !output.Base64 {
		return []byte(output.Data), nil
	}
	return base64.StdEncoding.DecodeString(output.Data)
}

// boundedBuffer caps how much stdout it will accept; once full it
// discards further writes and flags overflow rather than growing
// unbounded or exhausting host memory on an oversize response.
type boundedBuffer struct {
	buf        bytes.Buffer
	limit      int
	overflowed bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.overflowed {
		return len(p), nil
	}
	if b.buf.Len()+len(p) > b.limit {
		b.overflowed = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

// stderrWriter forwards guest stderr to the host process's own stderr.
type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) {
	return os.Stderr.Write(p)
}

// egressPolicyKey carries the calling worker's HTTP-egress policy
// through ctx into the shared "wws" host module, since send_http_request
// is linked once per Core but must enforce per-worker policy.
type egressPolicyKey struct{}

// registerHTTPEgressHost links the "wws" host module exporting
// send_http_request. Guests exchange JSON over a guest-allocated buffer:
// the guest calls its own exported "wws_alloc(n) -> ptr" to obtain
// write-space, copies its request JSON there, then calls
// send_http_request(reqPtr, reqLen) and receives a packed
// (respPtr<<32 | respLen) into which the host has written its own
// freshly-allocated (via the same wws_alloc) JSON response.
func (c *Core) registerHTTPEgressHost(ctx context.Context) error {
	_, err := c.runtime.NewHostModuleBuilder("wws").
		NewFunctionBuilder().
		WithFunc(c.sendHTTPRequest).
		Export("send_http_request").
		Instantiate(ctx)
	return err
}

func (c *Core) sendHTTPRequest(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	policy, _ := ctx.Value(egressPolicyKey{}).(workerconfig.HTTPRequests)

	mem := mod.Memory()
	raw, ok := mem.Read(reqPtr, reqLen)
	if !ok {
		return writeGuestResponse(mod, []byte(`{"error":true,"type":"InvalidRequest"}`))
	}

	var req struct {
		Method  string            `json:"method"`
		URI     string            `json:"uri"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return writeGuestResponse(mod, []byte(`{"error":true,"type":"InvalidRequest"}`))
	}

	var headers []httpegress.Header
	for k, v := range req.Headers {
		headers = append(headers, httpegress.Header{Name: k, Value: v})
	}

	resp, errResp := c.httpHost.Send(httpegress.Request{
		Method:  req.Method,
		URI:     req.URI,
		Headers: headers,
		Body:    []byte(req.Body),
	}, policy)

	if errResp != nil {
		payload, _ := json.Marshal(map[string]any{"error": true, "type": errResp.Kind, "message": errResp.Message})
		return writeGuestResponse(mod, payload)
	}

	respHeaders := map[string]string{}
	for _, h := range resp.Headers {
		respHeaders[h.Name] = h.Value
	}
	payload, _ := json.Marshal(map[string]any{
		"error":   false,
		"status":  resp.Status,
		"headers": respHeaders,
		"body":    resp.Body,
	})
	return writeGuestResponse(mod, payload)
}

// writeGuestResponse asks the calling guest to allocate space for
// payload via its exported "wws_alloc", copies payload into that space,
// and packs the resulting pointer and length into one return value.
func writeGuestResponse(mod api.Module, payload []byte) uint64 {
	alloc := mod.ExportedFunction("wws_alloc")
	if alloc == nil {
		return 0
	}
	results, err := alloc.Call(context.Background(), uint64(len(payload)))
	if err != nil || len(results) == 0 {
		return 0
	}
	ptr := uint32(results[0])
	mod.Memory().Write(ptr, payload)
	return uint64(ptr)<<32 | uint64(len(payload))
}
