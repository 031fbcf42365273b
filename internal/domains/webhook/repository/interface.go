package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payhook/internal/domains/webhook/model"
)

// WebhookRepoInterface persists webhook claims. The log is
// append-only: after Create only the fate, the transaction link and
// the duration are ever touched.
type WebhookRepoInterface interface {
	Create(ctx context.Context, log *model.WebhookLog) error
	CreateWithTx(ctx context.Context, tx pgx.Tx, log *model.WebhookLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.WebhookLog, error)

	// FindDuplicate looks for an earlier settled claim with the same
	// idempotency key, excluding the row being processed and rows
	// that were themselves duplicates
	FindDuplicate(ctx context.Context, provider, providerEventID string, excludeID uuid.UUID) (*model.WebhookLog, error)

	UpdateOutcome(ctx context.Context, id uuid.UUID, status model.ProcessingStatus, errorMessage *string, durationMs int64) error
	LinkTransaction(ctx context.Context, id, transactionID uuid.UUID) error
	LinkTransactionWithTx(ctx context.Context, tx pgx.Tx, id, transactionID uuid.UUID) error

	List(ctx context.Context, req *model.ListWebhooksRequest) ([]*model.WebhookLog, int64, error)
	GetStats(ctx context.Context, since time.Time) (*model.WebhookStats, error)

	// Retention: fetch candidates for archival, then delete them
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.WebhookLog, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// DispatchRepoInterface records handler invocations
type DispatchRepoInterface interface {
	Create(ctx context.Context, log *model.DispatchLog) error
	Complete(ctx context.Context, id uuid.UUID, status string, dispatchErr *string, durationMs int64) error
	ListByWebhookLogID(ctx context.Context, webhookLogID uuid.UUID) ([]*model.DispatchLog, error)
}
