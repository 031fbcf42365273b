package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhook/internal/domains/outbox/model"
)

// =====================================================
// OUTBOX REPOSITORY IMPLEMENTATION
// =====================================================
type outboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepoInterface {
	return &outboxRepository{pool: pool}
}

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type, payload, status,
	retry_count, max_retries, next_attempt_at, last_error, created_at,
	processed_at
`

func (r *outboxRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, entry *model.Entry) error {
	query := `
		INSERT INTO outbox_entries (
			id, aggregate_type, aggregate_id, event_type, payload, status,
			retry_count, max_retries, next_attempt_at, last_error, created_at,
			processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Payload,
		entry.Status,
		entry.RetryCount,
		entry.MaxRetries,
		entry.NextAttemptAt,
		entry.LastError,
		entry.CreatedAt,
		entry.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	return nil
}

// FetchDue uses SKIP LOCKED so concurrent drain workers never block
// each other or double-claim an entry
func (r *outboxRepository) FetchDue(ctx context.Context, limit int) ([]*model.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM outbox_entries
		WHERE status IN ($1, $2) AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, outboxColumns)

	rows, err := r.pool.Query(ctx, query, model.StatusPending, model.StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due outbox entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.Entry{}
	for rows.Next() {
		entry := &model.Entry{}
		err := rows.Scan(
			&entry.ID,
			&entry.AggregateType,
			&entry.AggregateID,
			&entry.EventType,
			&entry.Payload,
			&entry.Status,
			&entry.RetryCount,
			&entry.MaxRetries,
			&entry.NextAttemptAt,
			&entry.LastError,
			&entry.CreatedAt,
			&entry.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, entry *model.Entry) error {
	query := `
		UPDATE outbox_entries
		SET status = $2, processed_at = $3
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, entry.ID, entry.Status, entry.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry processed: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, entry *model.Entry) error {
	query := `
		UPDATE outbox_entries
		SET status = $2, retry_count = $3, next_attempt_at = $4, last_error = $5
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Status,
		entry.RetryCount,
		entry.NextAttemptAt,
		entry.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry failed: %w", err)
	}
	return nil
}

func (r *outboxRepository) PurgeProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_entries
		WHERE status = $1 AND processed_at < $2
	`

	tag, err := r.pool.Exec(ctx, query, model.StatusProcessed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *outboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM outbox_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outbox count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
