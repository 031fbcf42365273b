package service

import (
	"context"

	"github.com/google/uuid"

	"payhook/internal/domains/transaction/model"
)

// TransactionDetail bundles a transaction with its full audit trail
// for the admin detail view
type TransactionDetail struct {
	Transaction *model.Transaction `json:"transaction"`
	AuditTrail  []*model.AuditLog  `json:"audit_trail"`
}

// TransactionServiceInterface is the application-facing surface over
// the ledger. Webhook-driven transitions never come through here;
// they run inside the pipeline's state engine.
type TransactionServiceInterface interface {
	// Create registers a transaction ahead of the provider's webhook
	Create(ctx context.Context, req model.CreateTransactionRequest, actor string) (*model.Transaction, error)

	// GetByID loads one transaction
	GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)

	// GetDetail loads a transaction together with its audit trail
	GetDetail(ctx context.Context, id uuid.UUID) (*TransactionDetail, error)

	// GetByApplicationRef resolves the merchant's reference
	GetByApplicationRef(ctx context.Context, applicationRef string) (*model.Transaction, error)

	// ManualTransition applies an operator-driven status change
	ManualTransition(ctx context.Context, id uuid.UUID, req model.ManualTransitionRequest, actor string) (*model.Transaction, error)

	// MarkVerified raises the verification confidence after an
	// out-of-band check against the provider
	MarkVerified(ctx context.Context, id uuid.UUID, method model.VerificationMethod, actor, reason string) error

	// AdminList pages through transactions with filters
	AdminList(ctx context.Context, filters map[string]interface{}, page, limit int) ([]*model.Transaction, int, error)
}
