package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dimiro1/banner"
	"github.com/spf13/cobra"

	"github.com/ent0n29/scamguard/internal/app"
	"github.com/ent0n29/scamguard/internal/config"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket analysis server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), loaded)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("audio-dir", "static/audio", "directory holding call recordings")
	cmd.Flags().String("audio", "scam_bank.wav", "recording analyzed when a client names none")
	cmd.Flags().Bool("realtime", true, "pace segments by their end time in the recording")
	cmd.Flags().String("segments", "", "replay a fixed diarization from a yaml file")
	cmd.Flags().String("database-url", "", "detection history store (postgres:// or sqlite://)")
	cmd.Flags().String("providers", "", "force every capability to one backend (e.g. mock)")
	return cmd
}

func printBanner() {
	tpl := "{{ .Title \"scamguard\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func runServe(ctx context.Context, cfg config.Config) error {
	printBanner()
	logger := slog.Default()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()
	for capability, name := range built.Providers.Names {
		logger.Info("provider resolved", "capability", capability, "backend", name)
	}
	logger.Info("history store ready", "mode", built.History.Mode())

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	// Warm diarization for the bundled recordings so the first client does
	// not wait on the diarizer.
	if len(cfg.Audio.Precompute) > 0 {
		go func() {
			start := time.Now()
			if err := built.Cache.Warm(runCtx, cfg.Audio.Precompute...); err != nil {
				logger.Warn("diarization warmup incomplete", "error", err)
				return
			}
			logger.Info("diarization warmup done", "recordings", len(cfg.Audio.Precompute), "elapsed", time.Since(start).Round(time.Millisecond))
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.App.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.App.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}
	logger.Info("shutdown complete")
	return nil
}
