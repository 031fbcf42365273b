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

	"payhook/internal/domains/transaction/model"
	"payhook/pkg/database"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, letting the
// locked helpers run inside or outside an enclosing transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgUniqueViolation = "23505"

// =====================================================
// TRANSACTION REPOSITORY IMPLEMENTATION
// =====================================================
type transactionRepository struct {
	pool  *pgxpool.Pool
	audit AuditRepoInterface
}

func NewTransactionRepository(pool *pgxpool.Pool, audit AuditRepoInterface) TransactionRepoInterface {
	return &transactionRepository{pool: pool, audit: audit}
}

const transactionColumns = `
	id, application_ref, provider, provider_ref, status, amount, currency,
	verification_method, metadata, provider_created_at, created_at, updated_at, version
`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var metadataJSON []byte

	err := row.Scan(
		&txn.ID,
		&txn.ApplicationRef,
		&txn.Provider,
		&txn.ProviderRef,
		&txn.Status,
		&txn.Amount,
		&txn.Currency,
		&txn.VerificationMethod,
		&metadataJSON,
		&txn.ProviderCreatedAt,
		&txn.CreatedAt,
		&txn.UpdatedAt,
		&txn.Version,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		json.Unmarshal(metadataJSON, &txn.Metadata)
	}

	return txn, nil
}

// =====================================================
// CREATE
// =====================================================

func (r *transactionRepository) Create(ctx context.Context, txn *model.Transaction) error {
	return r.create(ctx, r.pool, txn)
}

func (r *transactionRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, txn *model.Transaction) error {
	return r.create(ctx, tx, txn)
}

func (r *transactionRepository) create(ctx context.Context, db dbtx, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, application_ref, provider, provider_ref, status, amount, currency,
			verification_method, metadata, provider_created_at, created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	metadataJSON, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = db.Exec(ctx, query,
		txn.ID,
		txn.ApplicationRef,
		txn.Provider,
		txn.ProviderRef,
		txn.Status,
		txn.Amount,
		txn.Currency,
		txn.VerificationMethod,
		metadataJSON,
		txn.ProviderCreatedAt,
		txn.CreatedAt,
		txn.UpdatedAt,
		txn.Version,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.NewDuplicateAppRefError(txn.ApplicationRef)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// =====================================================
// LOOKUPS
// =====================================================

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

func (r *transactionRepository) GetByApplicationRef(ctx context.Context, applicationRef string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE application_ref = $1`

	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, applicationRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by application ref: %w", err)
	}

	return txn, nil
}

func (r *transactionRepository) GetByProviderRef(ctx context.Context, provider, providerRef string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider = $1 AND provider_ref = $2`

	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, provider, providerRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by provider ref: %w", err)
	}

	return txn, nil
}

// GetForUpdate loads the row under a pessimistic write lock.
// All status transitions for one transaction serialize on this lock.
func (r *transactionRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	txn, err := scanTransaction(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	return txn, nil
}

// =====================================================
// LOCKED STATUS TRANSITIONS
// =====================================================

func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, target model.TransactionStatus, tctx model.TransitionContext, entry model.AuditEntry) (*model.Transaction, error) {
	return database.WithTransactionResult(ctx, r.pool, func(tx pgx.Tx) (*model.Transaction, error) {
		return r.UpdateStatusWithTx(ctx, tx, id, target, tctx, entry)
	})
}

// UpdateStatusWithTx re-reads the status under the row lock before
// applying the transition. A concurrent delivery that slipped past
// dedup loses the lock race and gets rejected here, which is what
// keeps transitions exactly-once.
func (r *transactionRepository) UpdateStatusWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, target model.TransactionStatus, tctx model.TransitionContext, entry model.AuditEntry) (*model.Transaction, error) {
	current, err := r.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	result := model.ValidateTransition(current.Status, target, tctx)
	if !result.Allowed {
		return nil, &model.TransitionRejectedError{
			From:   current.Status,
			To:     target,
			Reason: result.Reason,
		}
	}

	query := `
		UPDATE transactions
		SET status = $2, updated_at = $3, version = version + 1
		WHERE id = $1
	`

	now := time.Now()
	if _, err := tx.Exec(ctx, query, id, target, now); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	from := current.Status
	entry.FromStatus = &from
	entry.ToStatus = target
	if _, err := r.audit.CreateWithTx(ctx, tx, id, entry); err != nil {
		return nil, err
	}

	current.Status = target
	current.UpdatedAt = now
	current.Version++
	return current, nil
}

// LinkProviderRefWithTx is idempotent for an equal ref and refuses
// to overwrite a different one: provider_ref is immutable once set.
func (r *transactionRepository) LinkProviderRefWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string) error {
	current, err := r.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if current.HasProviderRef() {
		if *current.ProviderRef == providerRef {
			return nil
		}
		return model.NewProviderRefConflictError(*current.ProviderRef, providerRef)
	}

	query := `UPDATE transactions SET provider_ref = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.Exec(ctx, query, id, providerRef, time.Now()); err != nil {
		return fmt.Errorf("failed to link provider ref: %w", err)
	}

	return nil
}

func (r *transactionRepository) MarkAsProcessing(ctx context.Context, id uuid.UUID, providerRef string, method *model.VerificationMethod, entry model.AuditEntry) (*model.Transaction, error) {
	return database.WithTransactionResult(ctx, r.pool, func(tx pgx.Tx) (*model.Transaction, error) {
		if providerRef != "" {
			if err := r.LinkProviderRefWithTx(ctx, tx, id, providerRef); err != nil {
				return nil, err
			}
		}

		if method != nil {
			if err := r.raiseVerificationWithTx(ctx, tx, id, *method); err != nil {
				return nil, err
			}
		}

		return r.UpdateStatusWithTx(ctx, tx, id, model.StatusProcessing, model.TransitionContext{Trigger: entry.TriggerType}, entry)
	})
}

func (r *transactionRepository) MarkVerified(ctx context.Context, id uuid.UUID, method model.VerificationMethod, entry model.AuditEntry) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.raiseVerificationWithTx(ctx, tx, id, method); err != nil {
			return err
		}

		if _, err := r.audit.CreateWithTx(ctx, tx, id, entry); err != nil {
			return err
		}

		return nil
	})
}

// raiseVerificationWithTx enforces the confidence ordering under the
// row lock: the method only ever moves up.
func (r *transactionRepository) raiseVerificationWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, method model.VerificationMethod) error {
	current, err := r.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if method.ConfidenceRank() < current.VerificationMethod.ConfidenceRank() {
		return model.ErrVerificationDowngrade
	}
	if method == current.VerificationMethod {
		return nil
	}

	query := `UPDATE transactions SET verification_method = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.Exec(ctx, query, id, method, time.Now()); err != nil {
		return fmt.Errorf("failed to raise verification method: %w", err)
	}

	return nil
}

// =====================================================
// MAINTENANCE
// =====================================================

// ExpirePending flips stale PENDING rows to ABANDONED one locked
// transition at a time, so every flip carries its audit row.
func (r *transactionRepository) ExpirePending(ctx context.Context, olderThan time.Time, actor string) (int, error) {
	query := `
		SELECT id FROM transactions
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT 500
	`

	rows, err := r.pool.Query(ctx, query, model.StatusPending, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired pending transactions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}

	count := 0
	for _, id := range ids {
		_, err := r.UpdateStatus(ctx, id, model.StatusAbandoned,
			model.TransitionContext{Trigger: model.TriggerManual},
			model.AuditEntry{
				Action:      model.AuditActionStatusChanged,
				TriggerType: model.TriggerManual,
				Actor:       actor,
				Reason:      "pending transaction expired",
			},
		)
		if err != nil {
			// A concurrent webhook may have moved the row already
			var rejected *model.TransitionRejectedError
			if errors.As(err, &rejected) {
				continue
			}
			return count, err
		}
		count++
	}

	return count, nil
}

// =====================================================
// ADMIN METHODS
// =====================================================

func (r *transactionRepository) AdminList(ctx context.Context, filters map[string]interface{}, page, limit int) ([]*model.Transaction, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if provider, ok := filters["provider"].(string); ok && provider != "" {
		where += fmt.Sprintf(" AND provider = $%d", argPos)
		args = append(args, provider)
		argPos++
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		transactionColumns, where, argPos, argPos+1,
	)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	return txns, total, nil
}
