package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhook/internal/domains/webhook/model"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =====================================================
// WEBHOOK LOG REPOSITORY IMPLEMENTATION
// =====================================================
type webhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) WebhookRepoInterface {
	return &webhookRepository{pool: pool}
}

const webhookColumns = `
	id, provider, provider_event_id, event_type, raw_payload, headers,
	signature_valid, processing_status, normalized_event, transaction_id,
	error_message, processing_duration_ms, received_at
`

func scanWebhookLog(row pgx.Row) (*model.WebhookLog, error) {
	log := &model.WebhookLog{}
	var rawPayloadJSON, headersJSON, normalizedJSON []byte

	err := row.Scan(
		&log.ID,
		&log.Provider,
		&log.ProviderEventID,
		&log.EventType,
		&rawPayloadJSON,
		&headersJSON,
		&log.SignatureValid,
		&log.ProcessingStatus,
		&normalizedJSON,
		&log.TransactionID,
		&log.ErrorMessage,
		&log.ProcessingDurationMs,
		&log.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	if rawPayloadJSON != nil {
		json.Unmarshal(rawPayloadJSON, &log.RawPayload)
	}
	if headersJSON != nil {
		json.Unmarshal(headersJSON, &log.Headers)
	}
	if normalizedJSON != nil {
		json.Unmarshal(normalizedJSON, &log.NormalizedEvent)
	}

	return log, nil
}

// =====================================================
// CREATE
// =====================================================

func (r *webhookRepository) Create(ctx context.Context, log *model.WebhookLog) error {
	return r.create(ctx, r.pool, log)
}

func (r *webhookRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, log *model.WebhookLog) error {
	return r.create(ctx, tx, log)
}

func (r *webhookRepository) create(ctx context.Context, db dbtx, log *model.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (
			id, provider, provider_event_id, event_type, raw_payload, headers,
			signature_valid, processing_status, normalized_event, transaction_id,
			error_message, processing_duration_ms, received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	rawPayloadJSON, err := json.Marshal(log.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal raw payload: %w", err)
	}
	headersJSON, err := json.Marshal(log.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	var normalizedJSON []byte
	if log.NormalizedEvent != nil {
		normalizedJSON, err = json.Marshal(log.NormalizedEvent)
		if err != nil {
			return fmt.Errorf("failed to marshal normalized event: %w", err)
		}
	}

	_, err = db.Exec(ctx, query,
		log.ID,
		log.Provider,
		log.ProviderEventID,
		log.EventType,
		rawPayloadJSON,
		headersJSON,
		log.SignatureValid,
		log.ProcessingStatus,
		normalizedJSON,
		log.TransactionID,
		log.ErrorMessage,
		log.ProcessingDurationMs,
		log.ReceivedAt,
	)
	if err != nil {
		return &model.StorageError{Op: "create webhook log", Err: err}
	}
	return nil
}

// =====================================================
// LOOKUPS
// =====================================================

func (r *webhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WebhookLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_logs WHERE id = $1`, webhookColumns)

	log, err := scanWebhookLog(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWebhookNotFound
		}
		return nil, &model.StorageError{Op: "get webhook log", Err: err}
	}
	return log, nil
}

func (r *webhookRepository) FindDuplicate(ctx context.Context, provider, providerEventID string, excludeID uuid.UUID) (*model.WebhookLog, error) {
	// Claims that never passed signature verification do not count as
	// prior deliveries, and neither does a row that itself settled as
	// a duplicate. Only settled rows (duration stamped) match, so an
	// in-flight concurrent delivery is left to the cache tiebreak.
	query := fmt.Sprintf(`
		SELECT %s FROM webhook_logs
		WHERE provider = $1
		  AND provider_event_id = $2
		  AND id != $3
		  AND processing_status NOT IN ($4, $5, $6)
		  AND processing_duration_ms IS NOT NULL
		ORDER BY received_at ASC
		LIMIT 1
	`, webhookColumns)

	log, err := scanWebhookLog(r.pool.QueryRow(ctx, query,
		provider, providerEventID, excludeID,
		model.FateSignatureFailed, model.FateParseError, model.FateDuplicate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &model.StorageError{Op: "find duplicate", Err: err}
	}
	return log, nil
}

// =====================================================
// UPDATES
// =====================================================

func (r *webhookRepository) UpdateOutcome(ctx context.Context, id uuid.UUID, status model.ProcessingStatus, errorMessage *string, durationMs int64) error {
	query := `
		UPDATE webhook_logs
		SET processing_status = $2, error_message = $3, processing_duration_ms = $4
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, status, errorMessage, durationMs)
	if err != nil {
		return &model.StorageError{Op: "update webhook outcome", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return model.ErrWebhookNotFound
	}
	return nil
}

func (r *webhookRepository) LinkTransaction(ctx context.Context, id, transactionID uuid.UUID) error {
	return r.linkTransaction(ctx, r.pool, id, transactionID)
}

func (r *webhookRepository) LinkTransactionWithTx(ctx context.Context, tx pgx.Tx, id, transactionID uuid.UUID) error {
	return r.linkTransaction(ctx, tx, id, transactionID)
}

func (r *webhookRepository) linkTransaction(ctx context.Context, db dbtx, id, transactionID uuid.UUID) error {
	query := `UPDATE webhook_logs SET transaction_id = $2 WHERE id = $1`

	tag, err := db.Exec(ctx, query, id, transactionID)
	if err != nil {
		return &model.StorageError{Op: "link webhook to transaction", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return model.ErrWebhookNotFound
	}
	return nil
}

// =====================================================
// ADMIN LISTING & STATS
// =====================================================

func (r *webhookRepository) List(ctx context.Context, req *model.ListWebhooksRequest) ([]*model.WebhookLog, int64, error) {
	req.Normalize()

	where := "WHERE 1=1"
	args := []any{}
	argIdx := 1

	if req.Provider != "" {
		where += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, req.Provider)
		argIdx++
	}
	if req.Status != "" {
		where += fmt.Sprintf(" AND processing_status = $%d", argIdx)
		args = append(args, req.Status)
		argIdx++
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM webhook_logs %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, &model.StorageError{Op: "count webhook logs", Err: err}
	}

	query := fmt.Sprintf(`
		SELECT %s FROM webhook_logs %s
		ORDER BY received_at DESC
		LIMIT $%d OFFSET $%d
	`, webhookColumns, where, argIdx, argIdx+1)
	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, &model.StorageError{Op: "list webhook logs", Err: err}
	}
	defer rows.Close()

	logs := []*model.WebhookLog{}
	for rows.Next() {
		log, err := scanWebhookLog(rows)
		if err != nil {
			return nil, 0, &model.StorageError{Op: "scan webhook log", Err: err}
		}
		logs = append(logs, log)
	}
	return logs, total, rows.Err()
}

func (r *webhookRepository) GetStats(ctx context.Context, since time.Time) (*model.WebhookStats, error) {
	stats := &model.WebhookStats{
		ByStatus:   map[string]int64{},
		ByProvider: map[string]int64{},
		Since:      since,
	}

	query := `
		SELECT provider, processing_status, COUNT(*)
		FROM webhook_logs
		WHERE received_at >= $1
		GROUP BY provider, processing_status
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, &model.StorageError{Op: "webhook stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var provider, status string
		var count int64
		if err := rows.Scan(&provider, &status, &count); err != nil {
			return nil, &model.StorageError{Op: "scan webhook stats", Err: err}
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByProvider[provider] += count
		if status == string(model.FateSignatureFailed) {
			stats.SignatureFails += count
		}
	}
	return stats, rows.Err()
}

// =====================================================
// RETENTION
// =====================================================

func (r *webhookRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.WebhookLog, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM webhook_logs
		WHERE received_at < $1
		ORDER BY received_at ASC
		LIMIT $2
	`, webhookColumns)

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, &model.StorageError{Op: "list expired webhook logs", Err: err}
	}
	defer rows.Close()

	logs := []*model.WebhookLog{}
	for rows.Next() {
		log, err := scanWebhookLog(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "scan expired webhook log", Err: err}
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (r *webhookRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, &model.StorageError{Op: "delete webhook logs", Err: err}
	}
	return tag.RowsAffected(), nil
}
