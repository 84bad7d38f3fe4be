package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-reader/internal/api"
	"doc-reader/internal/config"
	"doc-reader/internal/dispatcher"
	"doc-reader/internal/normalizer"
	"doc-reader/internal/pipeline"
	"doc-reader/internal/postgresdb"
	"doc-reader/internal/providers"
	"doc-reader/internal/s3"
	"doc-reader/internal/session"
	"doc-reader/internal/valkeydb"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HaltMessage(err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessions session.Store = session.NewMemoryStore(cfg.SessionTTL)
	if cfg.ValkeyURL != "" {
		valkeyStore, err := valkeydb.New(ctx, cfg.ValkeyURL, cfg.ValkeyPassword, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("Failed to initialize valkey: %v", err)
		}
		defer valkeyStore.Close()

		sessions = valkeyStore
		logger.Info("session store initialized", "backend", "valkey")
	}

	opts := pipeline.Options{
		Bucket:         cfg.S3.Bucket,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	}

	if cfg.DatabaseURL != "" {
		postgresDB, err := postgresdb.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize postgresdb: %v", err)
		}
		defer postgresDB.Close()

		if err := postgresDB.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare submissions table: %v", err)
		}

		opts.Ledger = postgresDB
		logger.Info("submission ledger initialized")
	}

	if cfg.S3.Bucket != "" {
		s3Store, err := s3.NewFileStore(ctx, s3.S3Config{
			EndpointURL: cfg.S3.EndpointURL,
			Region:      cfg.S3.Region,
			AccessKey:   cfg.S3.AccessKey,
			SecretKey:   cfg.S3.SecretKey,
		})
		if err != nil {
			log.Fatalf("Could not create S3 filestore: %v", err)
		}

		opts.Files = s3Store
		logger.Info("S3 FileStore initialized", "bucket", cfg.S3.Bucket)
	}

	completer, err := providers.NewCompleter(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create %s client: %v", cfg.Provider, err)
	}

	svc := pipeline.New(
		sessions,
		normalizer.New(cfg.AcceptsPDF()),
		dispatcher.New(completer, dispatcher.Options{
			VisionModel:  cfg.VisionModel,
			TextModel:    cfg.TextModel,
			SystemPrompt: cfg.SystemPrompt,
		}),
		opts,
	)

	router := api.NewRouter(api.NewAPIHandler(svc, cfg.MaxUploadBytes, logger))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "provider", cfg.Provider, "variant", cfg.Variant)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("server shutdown complete")
}
