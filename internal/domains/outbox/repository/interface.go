package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"payhook/internal/domains/outbox/model"
)

// OutboxRepoInterface persists queued dispatches. CreateWithTx runs
// inside the same transaction as the transaction-status update so a
// committed state change always has its outbox entry.
type OutboxRepoInterface interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, entry *model.Entry) error

	// FetchDue claims up to limit pending or retry-failed entries
	// whose attempt time has arrived, locking them against concurrent
	// drainers
	FetchDue(ctx context.Context, limit int) ([]*model.Entry, error)

	MarkProcessed(ctx context.Context, entry *model.Entry) error
	MarkFailed(ctx context.Context, entry *model.Entry) error

	// PurgeProcessed removes processed entries older than the cutoff
	PurgeProcessed(ctx context.Context, cutoff time.Time) (int64, error)

	CountByStatus(ctx context.Context) (map[string]int64, error)
}
