// Package main provides the API server entry point for the address analyzer service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/address-analyzer/internal/api"
	"github.com/address-analyzer/internal/bootstrap"
	"github.com/address-analyzer/internal/claim"
	"github.com/address-analyzer/internal/config"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/service"
	"github.com/address-analyzer/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer logger.Sync()

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Missing credentials are fatal at startup, never per request
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()
	services := api.Services{}

	// Audit log
	var recorder service.AnalysisRecorder
	if cfg.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(&cfg.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()

		if err := storage.RunMigrations(storage.DatabaseURL(&cfg.Postgres), storage.DefaultMigrationsPath); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}

		repo := storage.NewAnalysisRepository(postgres)
		recorder = repo
		services.History = repo
		logger.Info("Analysis audit log enabled")
	}

	stack, err := bootstrap.NewAnalysis(ctx, cfg, recorder, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize analysis")
	}
	services.Analysis = stack.Service
	services.Chat = stack.Chat
	logger.WithFields(map[string]interface{}{
		"model":      stack.Model.Name(),
		"categories": len(stack.Catalog.Categories()),
		"networks":   stack.Networks,
	}).Info("Analysis service initialized")

	// Claim sessions are shared across instances through Redis when enabled
	var store claim.Store
	if cfg.Redis.Enabled {
		redis, err := storage.NewRedisCache(&cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()
		store = storage.NewClaimStore(redis)
		logger.Info("Claim sessions stored in Redis")
	} else {
		store = claim.NewMemoryStore()
		logger.Warn("REDIS_ENABLED is false: claim sessions are kept in memory")
	}

	verifier, err := bootstrap.NewVerifier(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize claim verifier")
	}
	defer verifier.Close()

	claims, err := service.NewClaimService(&service.ClaimServiceConfig{
		Store:        store,
		Verifier:     verifier,
		Stages:       cfg.Claim.Stages,
		Catalog:      stack.Catalog,
		TickInterval: cfg.Claim.TickInterval,
		PollInterval: cfg.Claim.PollInterval,
		CallTimeout:  cfg.Claim.CallTimeout,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize claim service")
	}
	if _, err := claims.Resume(ctx); err != nil {
		logger.WithError(err).Warn("Failed to resume claim watchers")
	}
	services.Claims = claims

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, services, logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := bootstrap.ShutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := claims.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Claim watchers did not stop cleanly")
	}

	logger.Info("Server exited")
}
