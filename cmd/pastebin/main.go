package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"pastebin-lite/internal/clock"
	"pastebin-lite/internal/config"
	"pastebin-lite/internal/httpserver"
	"pastebin-lite/internal/id"
	"pastebin-lite/internal/paste"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	addr := flag.String("addr", "", "listen address, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed loading config", "error", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	store, err := openStore(cfg.Store)
	if err != nil {
		logger.Error("failed opening data store", "type", cfg.Store.Type, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ids := id.New(cfg.IDs.Length)
	pastes, err := paste.New(paste.Config{
		Store:       store,
		IDGenerator: ids,
		Timeout:     cfg.Store.OpTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to construct paste service", "error", err)
		os.Exit(1)
	}

	var limiter *httpserver.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = httpserver.NewRateLimiter(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst, 15*time.Minute)
	}

	if cfg.TestMode {
		logger.Warn("test mode enabled, clients may override the clock", "header", clock.OverrideHeader)
	}

	srv, err := httpserver.New(httpserver.Config{
		Pastes:      pastes,
		Clock:       clock.New(cfg.TestMode),
		RateLimiter: limiter,
		TrustProxy:  cfg.Server.BehindProxy,
		BaseURL:     cfg.Server.BaseURL,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Janitor.Interval > 0 {
		httpserver.StartJanitor(ctx, store, cfg.Janitor.Interval, clock.New(false), logger)
	}

	srvHTTP := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "store", cfg.Store.Type, "id_length", ids.Length())
		if err := srvHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
