// Command termhost runs the remote terminal multiplexer: an HTTP control
// API plus WebSocket and WebTransport data-plane adapters, all sharing one
// in-memory session registry and an append-only SQLite audit trail.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/catterm/termhost/internal/audit"
	"github.com/catterm/termhost/internal/config"
	"github.com/catterm/termhost/internal/httpapi"
	"github.com/catterm/termhost/internal/registry"
	"github.com/catterm/termhost/internal/terminal"
	"github.com/catterm/termhost/internal/transport"
	"github.com/catterm/termhost/internal/wsadapter"
	"github.com/catterm/termhost/internal/wtadapter"
)

var version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("termhost v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	auditStore, err := audit.Open(ctx, cfg.Audit.DBPath)
	if err != nil {
		slog.Error("failed to open audit store", "path", cfg.Audit.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			slog.Error("failed to close audit store", "error", err)
		}
	}()

	reg := registry.New(slog.Default())
	idleTimeout := time.Duration(cfg.Terminal.SessionTimeout) * time.Millisecond
	svc := terminal.New(reg, auditStore, idleTimeout, slog.Default())

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	go svc.RunExpirySweep(sweepCtx, terminal.DefaultSweepInterval)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: httpapi.NewRouter(svc, cfg),
	}

	adapters := []transport.Adapter{
		wsadapter.New(svc, cfg, slog.Default()),
		wtadapter.New(svc, cfg, slog.Default()),
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1+len(adapters))

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("http control api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for _, a := range adapters {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	printStartupBanner(cfg)

	select {
	case err := <-errCh:
		slog.Error("component failed", "error", err)
		cancel()
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	wg.Wait()
	slog.Info("termhost stopped")
}

func printStartupBanner(cfg *config.Config) {
	fmt.Printf("\ntermhost v%s\n", version)
	fmt.Printf("  http control api: http://0.0.0.0:%d\n", cfg.HTTP.Port)
	fmt.Printf("  websocket:        ws://0.0.0.0:%d/ws\n", cfg.WebSocket.Port)
	fmt.Printf("  webtransport:     quic://0.0.0.0:%d\n", cfg.WebTransport.Port)
	fmt.Println("\nCtrl+C to stop")
}
