// Command codenav runs the code navigation service: managed language
// servers, a JSON query API, and an event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	codenavhttp "github.com/codenav-io/codenav/internal/adapter/http"
	lspAdapter "github.com/codenav-io/codenav/internal/adapter/lsp"
	"github.com/codenav-io/codenav/internal/adapter/natskv"
	otelAdapter "github.com/codenav-io/codenav/internal/adapter/otel"
	"github.com/codenav-io/codenav/internal/adapter/ristretto"
	"github.com/codenav-io/codenav/internal/adapter/tiered"
	"github.com/codenav-io/codenav/internal/adapter/ws"
	"github.com/codenav-io/codenav/internal/config"
	"github.com/codenav-io/codenav/internal/logger"
	"github.com/codenav-io/codenav/internal/port/cache"
	"github.com/codenav-io/codenav/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"workspace", cfg.LSP.Workspace,
		"cache_enabled", cfg.Cache.Enabled,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	metrics, err := otelAdapter.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Query result cache ---
	var queryCache cache.Cache
	if cfg.Cache.Enabled {
		l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("l1 cache: %w", err)
		}
		defer l1.Close()
		queryCache = l1

		if cfg.Cache.L2Enabled {
			l2, err := natskv.Connect(ctx, cfg.NATS.URL, cfg.Cache.L2Bucket, cfg.Cache.TTL)
			if err != nil {
				return fmt.Errorf("l2 cache: %w", err)
			}
			defer l2.Close()
			queryCache = tiered.New(l1, l2, cfg.Cache.TTL)
			slog.Info("tiered cache enabled", "bucket", cfg.Cache.L2Bucket)
		}
	}

	// --- Language server sessions ---
	hub := ws.NewHub()
	observer := service.NewEventObserver(metrics, hub)

	var avail lspAdapter.Availability
	if cfg.LSP.AutoInstall {
		avail = lspAdapter.NewInstaller()
	} else {
		avail = lspAdapter.NewChecker()
	}

	registry := lspAdapter.NewRegistry(cfg.LSP, avail, observer)
	defer registry.Shutdown()

	svc := service.NewLSPService(cfg.Cache, service.NewSessions(registry), queryCache, observer)
	observer.Bind(svc)

	// --- HTTP ---
	router := codenavhttp.NewRouter(codenavhttp.NewHandlers(svc), hub, cfg.Server.CORSOrigin)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: /ws connections are long-lived.
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}

	svc.Shutdown()
	return nil
}
