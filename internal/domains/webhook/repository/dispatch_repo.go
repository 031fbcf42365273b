package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhook/internal/domains/webhook/model"
)

// =====================================================
// DISPATCH LOG REPOSITORY IMPLEMENTATION
// =====================================================
type dispatchRepository struct {
	pool *pgxpool.Pool
}

func NewDispatchRepository(pool *pgxpool.Pool) DispatchRepoInterface {
	return &dispatchRepository{pool: pool}
}

func (r *dispatchRepository) Create(ctx context.Context, log *model.DispatchLog) error {
	query := `
		INSERT INTO dispatch_logs (
			id, webhook_log_id, transaction_id, event_type, handler_name,
			status, attempted_at, completed_at, duration_ms, error, retry_count, is_replay
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := r.pool.Exec(ctx, query,
		log.ID,
		log.WebhookLogID,
		log.TransactionID,
		log.EventType,
		log.HandlerName,
		log.Status,
		log.AttemptedAt,
		log.CompletedAt,
		log.DurationMs,
		log.Error,
		log.RetryCount,
		log.IsReplay,
	)
	if err != nil {
		return &model.StorageError{Op: "create dispatch log", Err: err}
	}
	return nil
}

func (r *dispatchRepository) Complete(ctx context.Context, id uuid.UUID, status string, dispatchErr *string, durationMs int64) error {
	query := `
		UPDATE dispatch_logs
		SET status = $2, error = $3, duration_ms = $4, completed_at = $5
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, status, dispatchErr, durationMs, time.Now().UTC())
	if err != nil {
		return &model.StorageError{Op: "complete dispatch log", Err: err}
	}
	return nil
}

func (r *dispatchRepository) ListByWebhookLogID(ctx context.Context, webhookLogID uuid.UUID) ([]*model.DispatchLog, error) {
	query := `
		SELECT id, webhook_log_id, transaction_id, event_type, handler_name,
		       status, attempted_at, completed_at, duration_ms, error, retry_count, is_replay
		FROM dispatch_logs
		WHERE webhook_log_id = $1
		ORDER BY attempted_at ASC
	`

	rows, err := r.pool.Query(ctx, query, webhookLogID)
	if err != nil {
		return nil, &model.StorageError{Op: "list dispatch logs", Err: err}
	}
	defer rows.Close()

	logs := []*model.DispatchLog{}
	for rows.Next() {
		log := &model.DispatchLog{}
		err := rows.Scan(
			&log.ID,
			&log.WebhookLogID,
			&log.TransactionID,
			&log.EventType,
			&log.HandlerName,
			&log.Status,
			&log.AttemptedAt,
			&log.CompletedAt,
			&log.DurationMs,
			&log.Error,
			&log.RetryCount,
			&log.IsReplay,
		)
		if err != nil {
			return nil, &model.StorageError{Op: "scan dispatch log", Err: err}
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
