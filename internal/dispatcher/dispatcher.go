// Package dispatcher is the thin HTTP glue between chi's mux and the
// routing/execution core: it consults the RouteTable, resolves a Worker,
// runs it, and renders the HTTP response.
package dispatcher

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rafbgarcia/wws/internal/execution"
	"github.com/rafbgarcia/wws/internal/logging"
	"github.com/rafbgarcia/wws/internal/router"
	"github.com/rafbgarcia/wws/internal/worker"
)

const serviceUnavailableBody = `<!doctype html><html><body><h1>503 Service Unavailable</h1></body></html>`

// Invoker runs one worker invocation. execution.Core implements it; tests
// supply a fake.
type Invoker interface {
	Invoke(ctx context.Context, w *worker.Worker, req execution.Request) (execution.Result, error)
}

// Dispatcher wires a router.Table, a worker.Registry, and an Invoker into
// one http.Handler.
type Dispatcher struct {
	mux      chi.Router
	table    *router.Table
	registry *worker.Registry
	core     Invoker
	log      *logging.Logger
}

// New builds a Dispatcher serving table's routes via core, with registry
// as the worker lookup and log as the request-scoped logger base.
func New(table *router.Table, registry *worker.Registry, core Invoker, log *logging.Logger) *Dispatcher {
	d := &Dispatcher{table: table, registry: registry, core: core, log: log}

	mux := chi.NewRouter()
	mux.HandleFunc("/*", d.handle)
	d.mux = mux
	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	d.mux.ServeHTTP(w, req)
}

func (d *Dispatcher) handle(w http.ResponseWriter, req *http.Request) {
	match, ok := d.table.Lookup(req.URL.Path)
	if !ok {
		http.NotFound(w, req)
		return
	}

	wk, ok := d.registry.Get(match.Route.WorkerID)
	if !ok {
		d.log.Error("worker not registered for matched route", "url_path", match.Route.URLPath)
		d.renderUnavailable(w)
		return
	}

	reqLog := d.log.With("worker_id", wk.ID, "method", req.Method, "path", req.URL.Path)
	ctx := context.WithValue(req.Context(), logCtxKey{}, reqLog)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		reqLog.Warn("reading request body", "error", err)
		d.renderUnavailable(w)
		return
	}

	headers := map[string]string{}
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	execReq := execution.Request{
		URL:     req.URL.RequestURI(),
		Method:  req.Method,
		Headers: headers,
		Body:    body,
		Params:  match.Params,
	}

	result, err := d.core.Invoke(ctx, wk, execReq)
	if err != nil {
		reqLog.Warn("invoking worker", "error", err)
		d.renderUnavailable(w)
		return
	}

	for name, value := range result.Headers {
		w.Header().Set(emissionHeaderName(name), value)
	}
	status := result.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(result.Body)
}

// emissionHeaderName rewrites underscores to hyphens: a QuickJS interop
// workaround carried forward from the guest ABI contract.
func emissionHeaderName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

func (d *Dispatcher) renderUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(w, serviceUnavailableBody)
}

type logCtxKey struct{}
