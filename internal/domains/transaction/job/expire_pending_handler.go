package job

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"payhook/internal/domains/transaction/repository"
	"payhook/pkg/logger"
)

// expiryActor is the audit actor for the sweep
const expiryActor = "system:expiry"

// ExpirePendingHandler abandons PENDING transactions that never saw a
// webhook. Each flip goes through the state machine with a MANUAL
// trigger, so the abandonment is an ordinary audited transition.
type ExpirePendingHandler struct {
	txnRepo      repository.TransactionRepoInterface
	pendingHours int
}

func NewExpirePendingHandler(txnRepo repository.TransactionRepoInterface, pendingHours int) *ExpirePendingHandler {
	if pendingHours <= 0 {
		pendingHours = 24
	}
	return &ExpirePendingHandler{
		txnRepo:      txnRepo,
		pendingHours: pendingHours,
	}
}

func (h *ExpirePendingHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-time.Duration(h.pendingHours) * time.Hour)

	expired, err := h.txnRepo.ExpirePending(ctx, cutoff, expiryActor)
	if err != nil {
		return fmt.Errorf("expire pending: %w", err)
	}

	if expired > 0 {
		logger.Info("expired stale pending transactions", map[string]interface{}{
			"expired": expired,
			"cutoff":  cutoff,
		})
	}
	return nil
}
