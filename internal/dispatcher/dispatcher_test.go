package dispatcher

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rafbgarcia/wws/internal/execution"
	"github.com/rafbgarcia/wws/internal/logging"
	"github.com/rafbgarcia/wws/internal/router"
	"github.com/rafbgarcia/wws/internal/worker"
)

type fakeInvoker struct {
	result execution.Result
	err    error
	called bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, w *worker.Worker, req execution.Request) (execution.Result, error) {
	f.called = true
	return f.result, f.err
}

func newTestDispatcher(t *testing.T, routes []router.Route, inv *fakeInvoker) *Dispatcher {
	t.Helper()
	table := router.NewTable(routes)
	registry := worker.NewRegistry()
	for _, r := range routes {
		registry.Add(&worker.Worker{ID: r.WorkerID, HandlerPath: r.HandlerPath})
	}
	log := logging.New(slog.LevelError)
	return New(table, registry, inv, log)
}

func TestDispatcherServesMatchedRoute(t *testing.T) {
	route := router.NewRoute("/proj", "/proj/index.wasm", "")
	inv := &fakeInvoker{result: execution.Result{
		Status:  200,
		Headers: map[string]string{"content-type": "text/plain"},
		Body:    []byte("hello"),
	}}
	d := newTestDispatcher(t, []router.Route{route}, inv)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q, want hello", rec.Body.String())
	}
	if got := rec.Header().Get("content-type"); got != "text/plain" {
		t.Errorf("content-type = %q, want text/plain", got)
	}
}

func TestDispatcherReturns404ForUnmatchedPath(t *testing.T) {
	route := router.NewRoute("/proj", "/proj/index.wasm", "")
	inv := &fakeInvoker{}
	d := newTestDispatcher(t, []router.Route{route}, inv)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if inv.called {
		t.Errorf("Invoke called for unmatched path")
	}
}

func TestDispatcherRenders503OnInvocationFailure(t *testing.T) {
	route := router.NewRoute("/proj", "/proj/index.wasm", "")
	inv := &fakeInvoker{err: execution.ErrRuntimeError}
	d := newTestDispatcher(t, []router.Route{route}, inv)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestEmissionHeaderNameRewritesUnderscore(t *testing.T) {
	if got := emissionHeaderName("x_my_header"); got != "x-my-header" {
		t.Errorf("emissionHeaderName() = %q, want x-my-header", got)
	}
}

func TestDynamicParamReachesExecutionRequest(t *testing.T) {
	route := router.NewRoute("/proj", "/proj/[id].js", "")
	var captured execution.Request
	inv := &fakeInvoker{}
	table := router.NewTable([]router.Route{route})
	registry := worker.NewRegistry()
	registry.Add(&worker.Worker{ID: route.WorkerID, HandlerPath: route.HandlerPath})
	log := logging.New(slog.LevelError)

	recorder := &recordingInvoker{fakeInvoker: inv, captured: &captured}
	d := New(table, registry, recorder, log)

	req := httptest.NewRequest(http.MethodGet, "/thisisatest", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if captured.Params["id"] != "thisisatest" {
		t.Errorf("Params[id] = %q, want thisisatest", captured.Params["id"])
	}
}

type recordingInvoker struct {
	*fakeInvoker
	captured *execution.Request
}

func (r *recordingInvoker) Invoke(ctx context.Context, w *worker.Worker, req execution.Request) (execution.Result, error) {
	*r.captured = req
	return r.fakeInvoker.Invoke(ctx, w, req)
}
