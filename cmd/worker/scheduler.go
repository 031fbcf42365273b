package main

import (
	"log"
	"time"

	"github.com/hibiken/asynq"

	"payhook/internal/shared"
	"payhook/pkg/logger"
)

// asynqScheduler wraps asynq.Scheduler with registration helpers
type asynqScheduler struct {
	*asynq.Scheduler
}

// setupScheduler registers the periodic jobs and starts the scheduler
func setupScheduler(cfg *workerConfig) *asynqScheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	s := &asynqScheduler{Scheduler: scheduler}
	if err := s.registerJobs(); err != nil {
		log.Fatalf("failed to register scheduled jobs: %v", err)
	}

	go func() {
		logger.Info("scheduler starting", nil)
		if err := scheduler.Run(); err != nil {
			log.Fatalf("scheduler failed: %v", err)
		}
	}()

	return s
}

func (s *asynqScheduler) registerJobs() error {
	// ================================================
	// JOB 1: Outbox drain (every minute)
	// ================================================
	// The drain loop empties the whole backlog per tick; one minute
	// bounds the delivery delay for queued dispatches.
	if _, err := s.Register(
		"* * * * *",
		asynq.NewTask(shared.TypeOutboxDrain, nil),
		asynq.Queue("critical"),
		asynq.MaxRetry(0), // the next tick retries anyway
		asynq.Timeout(55*time.Second),
	); err != nil {
		return err
	}

	// ================================================
	// JOB 2: Expire stale PENDING transactions (hourly)
	// ================================================
	if _, err := s.Register(
		"0 * * * *",
		asynq.NewTask(shared.TypeExpirePending, nil),
		asynq.Queue("default"),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	); err != nil {
		return err
	}

	// ================================================
	// JOB 3: Webhook log retention (daily at 3 AM)
	// ================================================
	if _, err := s.Register(
		"0 3 * * *",
		asynq.NewTask(shared.TypeWebhookRetention, nil),
		asynq.Queue("low"),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
	); err != nil {
		return err
	}

	// ================================================
	// JOB 4: Outbox retention (daily at 4 AM)
	// ================================================
	if _, err := s.Register(
		"0 4 * * *",
		asynq.NewTask(shared.TypeOutboxRetention, nil),
		asynq.Queue("low"),
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
	); err != nil {
		return err
	}

	logger.Info("scheduled jobs registered", map[string]interface{}{
		"jobs": 4,
	})
	return nil
}

// Shutdown stops the scheduler
func (s *asynqScheduler) Shutdown() {
	s.Scheduler.Shutdown()
}
