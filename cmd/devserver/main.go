package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/reportextract/internal/api"
	"github.com/timmy/reportextract/internal/config"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/repository"
	"github.com/timmy/reportextract/internal/service"
)

func main() {
	appLogger := logger.New(logger.LoadFromEnv("devserver"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	extractionService := service.NewExtractionService(
		repository.NewRunRepository(db),
		appLogger,
		&service.SimulatorConfig{
			QueuedFor:   cfg.Simulator.QueuedFor,
			RunningFor:  cfg.Simulator.RunningFor,
			FailIModels: cfg.Simulator.FailIModels,
		},
	)
	reportService := service.NewReportService(repository.NewMappingRepository(db), appLogger)
	reportService.SetPageSize(cfg.Simulator.PageSize)

	router := api.SetupRouter(extractionService, reportService, db, appLogger, &cfg.Server, cfg.Auth.Token)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":      cfg.Server.Port,
			"mode":      cfg.Server.Mode,
			"base_path": api.BasePath,
			"auth":      cfg.Auth.Token != "",
		}).Info("Starting development API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	appLogger.Info("Server exited")
}
