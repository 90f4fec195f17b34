// Package main is the entry point for the exercises backend server. It wires
// configuration, observability, the database, services, and the HTTP router.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exercisesapp/internal/config"
	"exercisesapp/internal/database"
	"exercisesapp/internal/handlers"
	"exercisesapp/internal/observability"
	"exercisesapp/internal/services"
	contextutils "exercisesapp/internal/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "exercises-backend")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info(ctx, "Starting exercises backend service", map[string]interface{}{
		"port":      cfg.Server.Port,
		"log_level": cfg.Server.LogLevel,
	})

	dbManager := database.NewManager(logger)
	dbConfig := database.DefaultDatabaseConfig()
	dbConfig.URL = cfg.Database.URL
	if cfg.Database.MaxOpenConns > 0 {
		dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		dbConfig.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}

	db, err := dbManager.InitDBWithConfig(dbConfig)
	if err != nil {
		logger.Error(ctx, "Failed to initialize database", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Error closing database", map[string]interface{}{"error": err.Error()})
		}
	}()

	// One gateway client per use case, each with its own response format
	generationGateway := services.NewGatewayClient(cfg.Gateway, services.TextWithQuestionsResponseFormat(), logger)
	gradingGateway := services.NewGatewayClient(cfg.Gateway, services.AnswerVerificationResponseFormat(), logger)

	userService := services.NewUserService(db, logger)
	exerciseService := services.NewExerciseService(db, generationGateway, cfg, logger)
	feedbackService := services.NewFeedbackService(db, gradingGateway, cfg, logger)

	router := handlers.NewRouter(cfg, userService, exerciseService, feedbackService, logger)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := router.Run(":" + port); err != nil {
			serverErr <- contextutils.WrapError(err, "server failed")
		}
	}()

	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
	case err := <-serverErr:
		logger.Error(ctx, "Server failed", err)
		os.Exit(1)
	}
}
