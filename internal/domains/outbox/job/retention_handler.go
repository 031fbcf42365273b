package job

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"payhook/internal/domains/outbox/repository"
	"payhook/pkg/logger"
)

// RetentionHandler purges processed outbox entries past the retention
// window. Pending and dead-letter entries are kept; dead letters need
// an operator decision, not a purge.
type RetentionHandler struct {
	outboxRepo    repository.OutboxRepoInterface
	retentionDays int
}

func NewRetentionHandler(outboxRepo repository.OutboxRepoInterface, retentionDays int) *RetentionHandler {
	return &RetentionHandler{
		outboxRepo:    outboxRepo,
		retentionDays: retentionDays,
	}
}

func (h *RetentionHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -h.retentionDays)

	purged, err := h.outboxRepo.PurgeProcessed(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	counts, err := h.outboxRepo.CountByStatus(ctx)
	if err != nil {
		logger.Error("failed to count outbox entries", err)
		counts = nil
	}

	logger.Info("outbox retention pass finished", map[string]interface{}{
		"purged":    purged,
		"cutoff":    cutoff,
		"remaining": counts,
	})
	return nil
}
