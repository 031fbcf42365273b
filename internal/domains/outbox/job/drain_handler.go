package job

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"payhook/internal/domains/outbox/service"
	"payhook/pkg/logger"
)

// DrainPayload is empty today; the batch size is fixed at
// construction
type DrainPayload struct{}

// DrainHandler runs one outbox drain pass per scheduled task. The
// drainer keeps fetching until the batch comes back short, so a
// single tick clears a backlog.
type DrainHandler struct {
	drainer *service.Drainer
}

func NewDrainHandler(drainer *service.Drainer) *DrainHandler {
	return &DrainHandler{drainer: drainer}
}

func (h *DrainHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	var total service.DrainStats
	for {
		stats, err := h.drainer.DrainOnce(ctx)
		if err != nil {
			return fmt.Errorf("outbox drain: %w", err)
		}
		total.Fetched += stats.Fetched
		total.Delivered += stats.Delivered
		total.Retried += stats.Retried
		total.DeadLetter += stats.DeadLetter

		// Retried entries go FAILED with a future attempt time and
		// dead letters leave the due set, so an empty fetch means the
		// backlog is clear
		if stats.Fetched == 0 {
			break
		}
	}

	if total.Fetched > 0 {
		logger.Info("outbox drained", map[string]interface{}{
			"fetched":     total.Fetched,
			"delivered":   total.Delivered,
			"retried":     total.Retried,
			"dead_letter": total.DeadLetter,
		})
	}
	return nil
}
