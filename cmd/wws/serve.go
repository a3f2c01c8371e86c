package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafbgarcia/wws/internal/catalog"
	"github.com/rafbgarcia/wws/internal/devwatch"
	"github.com/rafbgarcia/wws/internal/server"
)

func envDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func newServeCommand() *cobra.Command {
	var addr string
	var root string
	var prefix string
	var logLevel string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Scan a project root and serve it as an HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), server.Config{
				Addr:        addr,
				ProjectRoot: root,
				URLPrefix:   prefix,
				LogLevel:    level,
			}, watch)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", envDefault("WWS_ADDR", ":8080"), "address to listen on")
	cmd.Flags().StringVarP(&root, "root", "r", envDefault("WWS_ROOT", "."), "project root to scan")
	cmd.Flags().StringVar(&prefix, "prefix", envDefault("WWS_PREFIX", ""), "URL prefix prepended to every route")
	cmd.Flags().StringVar(&logLevel, "log-level", envDefault("WWS_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&watch, "watch", false, "rescan the project root on file changes")

	return cmd
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("wws: unrecognized log level %q", s)
	}
}

func runServe(ctx context.Context, cfg server.Config, watch bool) error {
	cat, err := catalog.Load(cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("wws: loading catalog: %w", err)
	}

	srv, err := server.New(ctx, cfg, cat, nil)
	if err != nil {
		return fmt.Errorf("wws: building server: %w", err)
	}

	if watch {
		w := devwatch.New(cfg.ProjectRoot, func() {
			rescanCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Rescan(rescanCtx, cat, nil); err != nil {
				fmt.Fprintln(os.Stderr, "wws: rescan failed:", err)
			}
		})
		if err := w.Start(); err != nil {
			return fmt.Errorf("wws: starting file watcher: %w", err)
		}
		defer w.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	return srv.ListenAndServe()
}
