// Package main is the entry point for the video conversion API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/config"
	"github.com/emanuelef/yt-convert-go/internal/infra/cache"
	"github.com/emanuelef/yt-convert-go/internal/infra/fs"
	"github.com/emanuelef/yt-convert-go/internal/infra/r2"
	"github.com/emanuelef/yt-convert-go/internal/service/converter"
	"github.com/emanuelef/yt-convert-go/internal/service/downloader"
	transport "github.com/emanuelef/yt-convert-go/internal/transport/http"
	"github.com/emanuelef/yt-convert-go/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logger.Setup(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := downloader.NewYtDlp(cfg.YtDlpPath)
	versionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	version, err := runner.Version(versionCtx)
	cancel()
	if err != nil {
		slog.Warn("yt-dlp not available, downloads will fail", "path", cfg.YtDlpPath, "error", err)
	} else {
		slog.Info("yt-dlp found", "version", version)
	}

	dlConfig := downloader.DefaultConfig()
	dlConfig.MaxFileSize = cfg.MaxFileSize
	dlConfig.MaxDuration = cfg.MaxDuration
	dlConfig.OutputDir = cfg.TempDir
	dlConfig.Timeout = cfg.DownloadTimeout
	dlConfig.YtDlpPath = cfg.YtDlpPath
	dlConfig.FFmpegPath = cfg.FFmpegPath

	infoCache := cache.NewVideoCache(cfg.InfoCacheTTL, 10*time.Minute)
	orchestrator := downloader.New(dlConfig, runner, downloader.WithInfoCache(infoCache))

	var opts []converter.Option
	var remote fs.RemoteSweeper
	if cfg.R2Enabled() {
		client, err := r2.NewClient(ctx, &r2.Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			slog.Warn("R2 not configured, serving files locally", "error", err)
		} else {
			opts = append(opts, converter.WithMirror(client))
			remote = client
		}
	}

	svc := converter.New(converter.Config{
		MaxWorkers:         cfg.MaxWorkers,
		MaxQueueSize:       cfg.MaxQueueSize,
		ArtifactTTL:        cfg.ArtifactTTL,
		PresignedURLExpiry: cfg.PresignedURLExpiry,
	}, orchestrator, opts...)
	svc.Start(ctx)

	cleaner := fs.NewCleaner(&fs.CleanerConfig{
		LocalDir:       cfg.TempDir,
		LocalMaxAge:    cfg.LocalMaxFileAge,
		LocalInterval:  cfg.LocalCleanupInterval,
		Remote:         remote,
		RemoteMaxAge:   cfg.R2MaxFileAge,
		RemoteInterval: cfg.R2CleanupInterval,
	})
	if n := cleaner.CleanupLocalNow(); n > 0 {
		slog.Info("Removed leftover files from previous run", "count", n)
	}
	cleaner.Start(ctx)

	limiters := transport.NewRateLimiters(cfg)
	router := transport.NewRouter(cfg, transport.NewHandlers(svc), limiters)
	server := transport.NewServer(":"+cfg.Port, router, cfg.DownloadTimeout+time.Minute)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"workers", cfg.MaxWorkers,
			"r2", remote != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	svc.Close()
	cleaner.Stop()

	st := infoCache.Stats()
	slog.Info("Shutdown complete", "info_cache_hits", st.Hits, "info_cache_misses", st.Misses)
	return nil
}
