package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vault_go/internal/app"
	"vault_go/internal/infra"

	"github.com/robfig/cron/v3"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 4. Stream Server (websocket event feed)
	mux := http.NewServeMux()
	mux.Handle("/stream", bootstrap.Hub)
	streamServer := &http.Server{Addr: cfg.Stream.ListenAddr, Handler: mux}
	go func() {
		slog.Info("✅ Stream server listening", slog.String("addr", cfg.Stream.ListenAddr))
		if err := streamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Stream server failed", slog.Any("error", err))
		}
	}()

	// 5. Rollover Scheduler. Round timing is an operational decision, so it
	// lives out here in the daemon, not in the accounting core.
	scheduler := cron.New(cron.WithSeconds())
	_, err := scheduler.AddFunc(cfg.Rollover.Schedule, func() {
		result, err := bootstrap.Service.Rollover(ctx, cfg.Rollover.AdminKey)
		if err != nil {
			slog.Error("Scheduled rollover failed", slog.Any("error", err))
			return
		}
		snap := infra.GlobalMetrics.Snapshot()
		slog.Info("📊 Rollover status",
			slog.Uint64("closed_round", result.Round),
			slog.Uint64("rollovers_total", snap.RolloversTotal),
			slog.Uint64("deposits_total", snap.DepositsTotal),
			slog.Uint64("errors_total", snap.ErrorsTotal))
	})
	if err != nil {
		slog.Error("❌ Invalid rollover schedule", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	slog.Info("✅ Rollover scheduler started", slog.String("spec", cfg.Rollover.Schedule))

	slog.InfoContext(ctx, "✨ Vault daemon fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := streamServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Stream server shutdown", slog.Any("error", err))
	}
	bootstrap.Hub.Close()
}
