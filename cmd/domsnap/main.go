// Command domsnap captures live page structure over CDP and serves
// compacted snapshots to agents over MCP stdio or HTTP.
//
// Usage:
//
//	domsnap -config domsnap.yaml           # run with config file
//	domsnap -mcp                           # MCP over stdio, defaults
//	domsnap -http :8942                    # HTTP API only
//	domsnap -url https://example.com -dump # one-shot: print snapshot JSON
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domsnap"
	"github.com/hazyhaar/domsnap/internal/audit"
	"github.com/hazyhaar/domsnap/internal/browser"
)

func main() {
	configPath := flag.String("config", "", "path to domsnap.yaml config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio")
	httpAddr := flag.String("http", "", "serve HTTP API on this address")
	oneURL := flag.String("url", "", "one-shot: open this URL")
	dump := flag.Bool("dump", false, "one-shot: print the serialized snapshot and exit (requires -url)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "domsnap:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *httpAddr != "" {
		cfg.Server.Listen = *httpAddr
	}

	logger := newLogger(cfg, *mcpMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *mcpMode, *httpAddr != "", *oneURL, *dump); err != nil {
		logger.Error("domsnap: fatal", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. In MCP stdio mode stdout carries
// the protocol, so logs always go to stderr.
func newLogger(cfg *domsnap.Config, mcpMode bool) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" && !mcpMode {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(ctx context.Context, logger *slog.Logger, cfg *domsnap.Config, mcpMode, httpMode bool, oneURL string, dump bool) error {
	mode := browser.ModeHeadless
	if cfg.Browser.Mode == "headful" {
		mode = browser.ModeHeadful
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Mode:            mode,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		BlockResources:  cfg.Browser.BlockResources,
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		Logger:          logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer mgr.Close()

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		var err error
		trail, err = audit.Open(cfg.Audit.Path, 0, logger)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer trail.DB().Close()
		defer trail.Close()
	}

	sessions := domsnap.NewSessions(cfg, mgr, trail, logger)
	defer sessions.Close()

	// One-shot: capture a page, print the compact snapshot, exit.
	if dump {
		if oneURL == "" {
			return fmt.Errorf("dump: -url is required")
		}
		sess, err := sessions.Acquire(ctx, "", oneURL)
		if err != nil {
			return fmt.Errorf("acquire: %w", err)
		}
		doc, err := sess.Observe(ctx)
		if err != nil {
			return fmt.Errorf("observe: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	if !mcpMode && !httpMode {
		mcpMode = true
	}

	// Optional warm session for -url in daemon modes.
	if oneURL != "" {
		if _, err := sessions.Acquire(ctx, "", oneURL); err != nil {
			logger.Warn("warm session", "url", oneURL, "error", err)
		}
	}

	errCh := make(chan error, 2)

	var srv *http.Server
	if httpMode {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		sessions.RegisterHTTP(r)

		srv = &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("http: listening", "addr", cfg.Server.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	if mcpMode {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "domsnap",
			Version: "1.0.0",
		}, nil)
		sessions.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("mcp: serving on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("mcp: %w", err)
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http: shutdown", "error", err)
		}
	}
	return nil
}

func resolveConfig(path string) (*domsnap.Config, error) {
	if path != "" {
		return domsnap.LoadConfigFile(path)
	}
	return domsnap.DefaultConfig(), nil
}
