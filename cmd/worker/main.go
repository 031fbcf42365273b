package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"payhook/pkg/container"
	"payhook/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using system environment")
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	logger.Init(env)

	// Initialize container
	c, err := container.NewContainer()
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer c.Cleanup()

	// Worker-local configuration
	cfg := loadWorkerConfig(c)

	// Job handlers
	handlers := initializeHandlers(c, cfg)

	// Asynq server + scheduler
	srv := setupAsynqServer(cfg, handlers)
	scheduler := setupScheduler(cfg)

	waitForShutdown(srv, scheduler)
}

func waitForShutdown(srv *asynqServer, scheduler *asynqScheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("worker shutting down", nil)
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info("worker stopped", nil)
}
