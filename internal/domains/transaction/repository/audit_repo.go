package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhook/internal/domains/transaction/model"
)

// =====================================================
// AUDIT LOG REPOSITORY IMPLEMENTATION
// =====================================================
type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepoInterface {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, transactionID uuid.UUID, entry model.AuditEntry) (*model.AuditLog, error) {
	return r.insert(ctx, r.pool, transactionID, entry)
}

func (r *auditRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, entry model.AuditEntry) (*model.AuditLog, error) {
	return r.insert(ctx, tx, transactionID, entry)
}

func (r *auditRepository) insert(ctx context.Context, db dbtx, transactionID uuid.UUID, entry model.AuditEntry) (*model.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (
			id, transaction_id, action, state_before, state_after, trigger_type,
			webhook_log_id, verification_method, performed_by, reason, metadata, performed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	log := &model.AuditLog{
		ID:                 uuid.New(),
		TransactionID:      transactionID,
		Action:             entry.Action,
		FromStatus:         entry.FromStatus,
		ToStatus:           entry.ToStatus,
		TriggerType:        entry.TriggerType,
		WebhookLogID:       entry.WebhookLogID,
		VerificationMethod: entry.VerificationMethod,
		Actor:              entry.Actor,
		Reason:             entry.Reason,
		Metadata:           entry.Metadata,
		CreatedAt:          time.Now(),
	}

	_, err = db.Exec(ctx, query,
		log.ID,
		log.TransactionID,
		log.Action,
		log.FromStatus,
		log.ToStatus,
		log.TriggerType,
		log.WebhookLogID,
		log.VerificationMethod,
		log.Actor,
		log.Reason,
		metadataJSON,
		log.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return log, nil
}

func (r *auditRepository) ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*model.AuditLog, error) {
	query := `
		SELECT
			id, transaction_id, action, state_before, state_after, trigger_type,
			webhook_log_id, verification_method, performed_by, reason, metadata, performed_at
		FROM audit_logs
		WHERE transaction_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.AuditLog
	for rows.Next() {
		log := &model.AuditLog{}
		var metadataJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.TransactionID,
			&log.Action,
			&log.FromStatus,
			&log.ToStatus,
			&log.TriggerType,
			&log.WebhookLogID,
			&log.VerificationMethod,
			&log.Actor,
			&log.Reason,
			&metadataJSON,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if metadataJSON != nil {
			json.Unmarshal(metadataJSON, &log.Metadata)
		}

		logs = append(logs, log)
	}

	return logs, nil
}
