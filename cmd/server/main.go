/**
 * @description
 * This is the main entry point for the planner API server.
 * It loads configuration, wires the application, starts the balance refresh
 * scheduler and serves HTTP until SIGINT or SIGTERM.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/api"
	"github.com/goalpath/planner-api/internal/app"
	"github.com/goalpath/planner-api/internal/config"
	"github.com/goalpath/planner-api/internal/logging"
)

func main() {
	// Local development keeps secrets in .env; deployed stages use real env vars.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn component=bootstrap msg=\"failed to load .env\" err=%v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=error component=bootstrap msg=\"failed to load configuration\" err=%v", err)
	}

	logger, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("level=error component=bootstrap msg=\"failed to build logger\" err=%v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	application, err := api.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer application.Close()

	jobs := app.NewJobs(application.Banking, logging.Component(logger, "jobs"))
	scheduler := app.NewScheduler(jobs, logging.Component(logger, "scheduler"), cfg.BalanceRefreshSchedule)
	scheduler.Start()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           application.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort), zap.String("env", cfg.NodeEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown deadline")
	}

	logger.Info("server stopped")
}
