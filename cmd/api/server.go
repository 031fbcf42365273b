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

	"payhook/pkg/container"
	"payhook/pkg/logger"
)

func Serve() {
	// =====================================================
	// 1. BUILD DI CONTAINER
	// =====================================================
	appContainer, err := container.NewContainer()
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer appContainer.Cleanup()

	// =====================================================
	// 2. SETUP ROUTER
	// =====================================================
	router := SetupRouter(appContainer)

	// =====================================================
	// 3. CONFIGURE HTTP SERVER
	// =====================================================
	port := appContainer.Config.App.Port
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", port),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   35 * time.Second, // pipeline timeout + headroom
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// =====================================================
	// 4. START SERVER (NON-BLOCKING)
	// =====================================================
	go func() {
		logger.Info("api server starting", map[string]interface{}{
			"port":        port,
			"environment": appContainer.Config.App.Environment,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// =====================================================
	// 5. WAIT FOR SHUTDOWN SIGNAL
	// =====================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down api server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", err)
	}
	logger.Info("api server stopped", nil)
}
