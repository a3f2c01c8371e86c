// Package server wires the routing, execution, and catalog packages into
// one runnable HTTP server: scanning a project root for handler files,
// building a Worker per handler, deriving the RouteTable, and serving it
// through the Dispatcher.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rafbgarcia/wws/internal/catalog"
	"github.com/rafbgarcia/wws/internal/dispatcher"
	"github.com/rafbgarcia/wws/internal/execution"
	"github.com/rafbgarcia/wws/internal/kv"
	"github.com/rafbgarcia/wws/internal/logging"
	"github.com/rafbgarcia/wws/internal/router"
	"github.com/rafbgarcia/wws/internal/scanner"
	"github.com/rafbgarcia/wws/internal/worker"
	"github.com/rafbgarcia/wws/internal/workerconfig"
	"github.com/rafbgarcia/wws/internal/wruntime"
)

// Config holds everything needed to build a Server, populated by the CLI
// from flags and $ENV overrides.
type Config struct {
	Addr        string
	ProjectRoot string
	URLPrefix   string
	Extensions  []string
	Ignore      []string
	LogLevel    slog.Level
}

// WorkerInfo is a read-only introspection record for one registered
// worker, not exposed over HTTP but available to an embedder that wants
// to mount its own introspection endpoint.
type WorkerInfo struct {
	URLPath     string
	HandlerPath string
	Kind        router.Kind
	RuntimeKind wruntime.Kind
}

// Server owns the process-lifetime state: the worker registry, the KV
// layer, and the execution core. These are explicit fields threaded
// through construction, never package-level globals.
type Server struct {
	cfg        Config
	log        *logging.Logger
	registry   *worker.Registry
	kvLayer    *kv.Layer
	core       *execution.Core
	table      *router.Table
	dispatcher *dispatcher.Dispatcher
	httpServer *http.Server
}

// New scans cfg.ProjectRoot, builds a Worker for every discovered handler,
// derives the RouteTable, and assembles a Server ready to Serve.
func New(ctx context.Context, cfg Config, cat *catalog.Catalog, jsEngine func() ([]byte, error)) (*Server, error) {
	log := logging.New(cfg.LogLevel)

	sc := scanner.New(cfg.ProjectRoot, cfg.Extensions, cfg.Ignore)
	hits, err := sc.Scan()
	if err != nil {
		return nil, fmt.Errorf("server: scanning project root: %w", err)
	}

	kvLayer := kv.New()
	core, err := execution.New(ctx, kvLayer)
	if err != nil {
		return nil, fmt.Errorf("server: building execution core: %w", err)
	}

	registry := worker.NewRegistry()
	var routes []router.Route
	for _, handlerPath := range hits {
		wcfg, err := workerconfig.Load(handlerPath)
		if err != nil {
			return nil, fmt.Errorf("server: loading config for %s: %w", handlerPath, err)
		}

		rt, err := wruntime.Select(cfg.ProjectRoot, handlerPath, cat, jsEngine)
		if err != nil {
			return nil, fmt.Errorf("server: selecting runtime for %s: %w", handlerPath, err)
		}

		route := router.NewRoute(cfg.ProjectRoot, handlerPath, cfg.URLPrefix)

		w, err := worker.New(route.WorkerID, handlerPath, wcfg, rt)
		if err != nil {
			return nil, fmt.Errorf("server: building worker for %s: %w", handlerPath, err)
		}

		registry.Add(w)
		routes = append(routes, route)
		log.Info("registered worker", "url_path", route.URLPath, "handler_path", handlerPath)
	}

	table := router.NewTable(routes)
	disp := dispatcher.New(table, registry, core, log)

	return &Server{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		kvLayer:    kvLayer,
		core:       core,
		table:      table,
		dispatcher: disp,
		httpServer: &http.Server{Addr: cfg.Addr, Handler: disp},
	}, nil
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.cfg.Addr, "project_root", s.cfg.ProjectRoot)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and releases the execution
// core's shared wazero runtime.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.core.Close(ctx)
}

// Rescan re-scans the project root and rebuilds the route table and
// worker registry in place, for use by the dev-mode file watcher.
func (s *Server) Rescan(ctx context.Context, cat *catalog.Catalog, jsEngine func() ([]byte, error)) error {
	fresh, err := New(ctx, s.cfg, cat, jsEngine)
	if err != nil {
		return err
	}
	if err := s.core.Close(ctx); err != nil {
		s.log.Warn("closing previous execution core", "error", err)
	}

	s.registry = fresh.registry
	s.kvLayer = fresh.kvLayer
	s.core = fresh.core
	s.table = fresh.table
	s.dispatcher = fresh.dispatcher
	s.httpServer.Handler = fresh.dispatcher
	return nil
}

// Workers returns a read-only snapshot of every registered worker, for an
// embedder to mount its own introspection endpoint.
func (s *Server) Workers() []WorkerInfo {
	var out []WorkerInfo
	for _, route := range s.table.Routes() {
		w, ok := s.registry.Get(route.WorkerID)
		if !ok {
			continue
		}
		out = append(out, WorkerInfo{
			URLPath:     route.URLPath,
			HandlerPath: w.HandlerPath,
			Kind:        route.Kind,
			RuntimeKind: w.Runtime.Kind(),
		})
	}
	return out
}

// Handler returns the server's current http.Handler, for tests that want
// to drive it directly without binding a socket.
func (s *Server) Handler() http.Handler {
	return s.dispatcher
}
