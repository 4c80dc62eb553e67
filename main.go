package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lvcs/internal/api"
	"lvcs/internal/config"
	"lvcs/internal/logging"
	"lvcs/internal/middleware"
	"lvcs/internal/repository"
	"lvcs/internal/workspace"

	"go.uber.org/zap"
)

func main() {
	dir := flag.String("workspace", ".", "workspace to serve")
	configPath := flag.String("config", "", "config file (default: LVCS_ENV file, then the workspace config)")
	flag.Parse()

	// Load configuration, preferring the workspace's own file
	path := *configPath
	if path == "" {
		if root, err := workspace.FindRoot(*dir); err == nil {
			path = filepath.Join(root, workspace.MetaDir, repository.ConfigFile)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.Open(ctx, *dir, repository.Options{
		ConfigPath: path,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to open workspace", zap.Error(err))
	}
	defer repo.Close()

	// Set up router
	mux := http.NewServeMux()
	api.NewHistoryHandler(repo.History, logger).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.RequestID,
	)

	// Start server
	addr := repo.Config.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("workspace", repo.Root),
		zap.Int("revision", repo.History.Revision()))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", zap.Error(err))
	}
}
