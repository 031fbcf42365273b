package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payhook/internal/domains/transaction/model"
	"payhook/internal/domains/transaction/repository"
	"payhook/pkg/database"
	"payhook/pkg/logger"
)

// =====================================================
// TRANSACTION SERVICE
// =====================================================

// TxRunner executes a function inside one database transaction
type TxRunner func(ctx context.Context, fn database.TxFunc) error

type transactionService struct {
	txnRepo   repository.TransactionRepoInterface
	auditRepo repository.AuditRepoInterface
	runInTx   TxRunner
}

func NewTransactionService(
	txnRepo repository.TransactionRepoInterface,
	auditRepo repository.AuditRepoInterface,
	runInTx TxRunner,
) TransactionServiceInterface {
	return &transactionService{
		txnRepo:   txnRepo,
		auditRepo: auditRepo,
		runInTx:   runInTx,
	}
}

// Create registers a PENDING transaction before the provider calls
// back.
//
// Business Logic Flow:
// 1. Validate the request
// 2. Build the PENDING transaction
// 3. Insert row + creation audit entry in one database transaction
func (s *transactionService) Create(ctx context.Context, req model.CreateTransactionRequest, actor string) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewTransactionError(model.ErrCodeInvalidRequest, "invalid create request", err)
	}

	now := time.Now().UTC()
	txn := &model.Transaction{
		ID:                 uuid.New(),
		ApplicationRef:     req.ApplicationRef,
		Provider:           req.Provider,
		ProviderRef:        req.ProviderRef,
		Status:             model.StatusPending,
		VerificationMethod: model.VerificationWebhookOnly,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Metadata:           req.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}

	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if err := s.txnRepo.CreateWithTx(ctx, tx, txn); err != nil {
			return err
		}
		_, err := s.auditRepo.CreateWithTx(ctx, tx, txn.ID, model.AuditEntry{
			Action:      model.AuditActionTransactionCreated,
			ToStatus:    model.StatusPending,
			TriggerType: model.TriggerManual,
			Actor:       actor,
			Reason:      "transaction registered via API",
		})
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateApplicationRef) {
			return nil, model.NewDuplicateAppRefError(req.ApplicationRef)
		}
		return nil, err
	}

	logger.Info("transaction created", map[string]interface{}{
		"transaction_id":  txn.ID,
		"application_ref": txn.ApplicationRef,
		"provider":        txn.Provider,
		"actor":           actor,
	})
	return txn, nil
}

func (s *transactionService) GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return s.txnRepo.GetByID(ctx, id)
}

func (s *transactionService) GetDetail(ctx context.Context, id uuid.UUID) (*TransactionDetail, error) {
	txn, err := s.txnRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	trail, err := s.auditRepo.ListByTransactionID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TransactionDetail{Transaction: txn, AuditTrail: trail}, nil
}

func (s *transactionService) GetByApplicationRef(ctx context.Context, applicationRef string) (*model.Transaction, error) {
	return s.txnRepo.GetByApplicationRef(ctx, applicationRef)
}

// ManualTransition applies an operator override. The force flag lets
// the operator take edges outside the table; terminal sources stay
// sealed even then.
func (s *transactionService) ManualTransition(ctx context.Context, id uuid.UUID, req model.ManualTransitionRequest, actor string) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewTransactionError(model.ErrCodeInvalidRequest, "invalid transition request", err)
	}

	updated, err := s.txnRepo.UpdateStatus(ctx, id, req.TargetStatus, model.TransitionContext{
		Trigger: model.TriggerManual,
		Force:   req.Force,
	}, model.AuditEntry{
		Action:      model.AuditActionStatusChanged,
		TriggerType: model.TriggerManual,
		Actor:       actor,
		Reason:      req.Reason,
		Metadata: map[string]interface{}{
			"forced": req.Force,
		},
	})
	if err != nil {
		return nil, err
	}

	logger.Info("manual transition applied", map[string]interface{}{
		"transaction_id": id,
		"target_status":  req.TargetStatus,
		"forced":         req.Force,
		"actor":          actor,
	})
	return updated, nil
}

func (s *transactionService) MarkVerified(ctx context.Context, id uuid.UUID, method model.VerificationMethod, actor, reason string) error {
	return s.txnRepo.MarkVerified(ctx, id, method, model.AuditEntry{
		Action:             model.AuditActionVerificationUpgrade,
		TriggerType:        model.TriggerAPIVerification,
		VerificationMethod: &method,
		Actor:              actor,
		Reason:             reason,
	})
}

func (s *transactionService) AdminList(ctx context.Context, filters map[string]interface{}, page, limit int) ([]*model.Transaction, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	return s.txnRepo.AdminList(ctx, filters, page, limit)
}
