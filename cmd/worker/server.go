package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"payhook/pkg/logger"
)

// asynqServer wraps asynq.Server with startup and shutdown helpers
type asynqServer struct {
	*asynq.Server
}

// setupAsynqServer creates and starts the task server
func setupAsynqServer(cfg *workerConfig, handlers *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Queues: map[string]int{
				"critical": 20,
				"default":  10,
				"low":      5,
			},
			Concurrency: 10,
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				logger.ErrorFields("task failed", err, map[string]interface{}{
					"type": task.Type(),
				})
			}),
		},
	)

	go func() {
		logger.Info("worker starting", nil)
		if err := srv.Run(mux); err != nil {
			log.Fatalf("worker failed: %v", err)
		}
	}()

	return &asynqServer{Server: srv}
}

// Shutdown stops the server, waiting for in-flight tasks
func (s *asynqServer) Shutdown() {
	logger.Info("worker draining in-flight tasks", nil)
	s.Server.Shutdown()
}
