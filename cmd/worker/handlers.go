package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	outboxjob "payhook/internal/domains/outbox/job"
	txnjob "payhook/internal/domains/transaction/job"
	webhookjob "payhook/internal/domains/webhook/job"
	"payhook/internal/infrastructure/archive"
	"payhook/internal/shared"
	"payhook/pkg/container"
	"payhook/pkg/logger"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	outboxDrain      *outboxjob.DrainHandler
	outboxRetention  *outboxjob.RetentionHandler
	webhookRetention *webhookjob.RetentionHandler
	expirePending    *txnjob.ExpirePendingHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container, cfg *workerConfig) *HandlerRegistry {
	// The archive is worker-only; the API never touches object storage
	var payloadArchive archive.PayloadArchive
	if cfg.ArchiveEnabled {
		a, err := archive.NewMinIOArchive(context.Background(), c.Config.MinIO)
		if err != nil {
			log.Fatalf("failed to initialize payload archive: %v", err)
		}
		payloadArchive = a
	} else {
		logger.Warn("payload archive disabled; retention deletes without archiving", nil)
	}

	return &HandlerRegistry{
		outboxDrain:      outboxjob.NewDrainHandler(c.Drainer),
		outboxRetention:  outboxjob.NewRetentionHandler(c.OutboxRepo, cfg.OutboxRetentionDays),
		webhookRetention: webhookjob.NewRetentionHandler(c.WebhookRepo, payloadArchive, cfg.WebhookRetentionDays),
		expirePending:    txnjob.NewExpirePendingHandler(c.TransactionRepo, cfg.PendingExpiryHours),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeOutboxDrain, h.outboxDrain.ProcessTask)
	mux.HandleFunc(shared.TypeOutboxRetention, h.outboxRetention.ProcessTask)
	mux.HandleFunc(shared.TypeWebhookRetention, h.webhookRetention.ProcessTask)
	mux.HandleFunc(shared.TypeExpirePending, h.expirePending.ProcessTask)
}
