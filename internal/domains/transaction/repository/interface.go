package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payhook/internal/domains/transaction/model"
)

// =====================================================
// TRANSACTION REPOSITORY INTERFACE
// =====================================================
type TransactionRepoInterface interface {
	// ============================================
	// TRANSACTION-AWARE METHODS
	// ============================================

	// CreateWithTx creates a transaction within the provided database
	// transaction. Fails with model.ErrDuplicateApplicationRef on an
	// application_ref collision.
	CreateWithTx(ctx context.Context, tx pgx.Tx, txn *model.Transaction) error

	// UpdateStatusWithTx applies a status transition within the
	// provided database transaction. It acquires a pessimistic row
	// lock, re-reads the status, re-validates the transition against
	// the state machine and writes status + audit row atomically.
	// Returns *model.TransitionRejectedError when the re-read status
	// no longer admits the transition.
	UpdateStatusWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, target model.TransactionStatus, tctx model.TransitionContext, entry model.AuditEntry) (*model.Transaction, error)

	// LinkProviderRefWithTx sets provider_ref under the row lock.
	// Idempotent no-op when the ref already equals the given value;
	// fails with model.ErrProviderRefConflict when it differs.
	LinkProviderRefWithTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string) error

	// GetForUpdate loads a row under FOR UPDATE within a transaction
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Transaction, error)

	// ============================================
	// STANDALONE METHODS
	// ============================================

	// Create creates a transaction in its own unit of work
	Create(ctx context.Context, txn *model.Transaction) error

	// GetByID gets a transaction by id
	GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)

	// GetByApplicationRef gets a transaction by its unique
	// application reference
	GetByApplicationRef(ctx context.Context, applicationRef string) (*model.Transaction, error)

	// GetByProviderRef gets a transaction by (provider, provider_ref)
	GetByProviderRef(ctx context.Context, provider, providerRef string) (*model.Transaction, error)

	// UpdateStatus applies a locked status transition with its audit
	// row in a single unit of work
	UpdateStatus(ctx context.Context, id uuid.UUID, target model.TransactionStatus, tctx model.TransitionContext, entry model.AuditEntry) (*model.Transaction, error)

	// MarkAsProcessing moves a PENDING transaction to PROCESSING and
	// links the provider reference in the same unit of work
	MarkAsProcessing(ctx context.Context, id uuid.UUID, providerRef string, method *model.VerificationMethod, entry model.AuditEntry) (*model.Transaction, error)

	// MarkVerified raises the verification method under the row lock.
	// Fails with model.ErrVerificationDowngrade when the new method
	// ranks below the current one.
	MarkVerified(ctx context.Context, id uuid.UUID, method model.VerificationMethod, entry model.AuditEntry) error

	// ExpirePending abandons PENDING transactions older than the
	// cutoff, one locked transition each. Returns how many flipped.
	ExpirePending(ctx context.Context, olderThan time.Time, actor string) (int, error)

	// AdminList lists transactions with filters (admin)
	AdminList(ctx context.Context, filters map[string]interface{}, page, limit int) ([]*model.Transaction, int, error)
}

// =====================================================
// AUDIT LOG REPOSITORY INTERFACE
// =====================================================
type AuditRepoInterface interface {
	// CreateWithTx appends an audit row within the provided database
	// transaction
	CreateWithTx(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, entry model.AuditEntry) (*model.AuditLog, error)

	// Create appends an audit row in its own unit of work
	Create(ctx context.Context, transactionID uuid.UUID, entry model.AuditEntry) (*model.AuditLog, error)

	// ListByTransactionID lists the audit trail oldest first
	ListByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*model.AuditLog, error)
}
