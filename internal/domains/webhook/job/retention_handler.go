package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/repository"
	"payhook/internal/infrastructure/archive"
	"payhook/pkg/logger"
)

const retentionBatchSize = 200

// RetentionHandler ages webhook logs out of the database. When an
// archive is configured each batch is written to object storage
// first; a claim row is only deleted once its archive copy is stored.
type RetentionHandler struct {
	webhookRepo   repository.WebhookRepoInterface
	archive       archive.PayloadArchive // nil disables archiving
	retentionDays int
}

func NewRetentionHandler(webhookRepo repository.WebhookRepoInterface, archive archive.PayloadArchive, retentionDays int) *RetentionHandler {
	return &RetentionHandler{
		webhookRepo:   webhookRepo,
		archive:       archive,
		retentionDays: retentionDays,
	}
}

func (h *RetentionHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -h.retentionDays)
	var purged int64

	for {
		logs, err := h.webhookRepo.ListOlderThan(ctx, cutoff, retentionBatchSize)
		if err != nil {
			return fmt.Errorf("webhook retention list: %w", err)
		}
		if len(logs) == 0 {
			break
		}

		ids, err := h.archiveBatch(ctx, logs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			// Every archive write failed; retry on the next tick
			break
		}

		deleted, err := h.webhookRepo.DeleteByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("webhook retention delete: %w", err)
		}
		purged += deleted

		if len(logs) < retentionBatchSize {
			break
		}
	}

	logger.Info("webhook retention pass finished", map[string]interface{}{
		"purged": purged,
		"cutoff": cutoff,
	})
	return nil
}

// archiveBatch stores each claim and returns the ids safe to delete
func (h *RetentionHandler) archiveBatch(ctx context.Context, logs []*model.WebhookLog) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(logs))
	for _, log := range logs {
		if h.archive != nil {
			data, err := json.Marshal(log)
			if err != nil {
				return nil, fmt.Errorf("webhook retention marshal %s: %w", log.ID, err)
			}
			key := fmt.Sprintf("webhooks/%s/%s.json", log.ReceivedAt.UTC().Format("2006/01/02"), log.ID)
			if err := h.archive.Store(ctx, key, data); err != nil {
				// Keep the row; it ages out on a later pass once the
				// object store recovers
				logger.ErrorFields("failed to archive webhook payload", err, map[string]interface{}{
					"webhook_log_id": log.ID,
				})
				continue
			}
		}
		ids = append(ids, log.ID)
	}
	return ids, nil
}
