package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	outboxmodel "payhook/internal/domains/outbox/model"
	outboxrepo "payhook/internal/domains/outbox/repository"
	txmodel "payhook/internal/domains/transaction/model"
	txnrepo "payhook/internal/domains/transaction/repository"
	"payhook/internal/domains/webhook/model"
	webhookrepo "payhook/internal/domains/webhook/repository"
	"payhook/pkg/logger"
)

// =====================================================
// STAGE 5: STATE ENGINE
// =====================================================

// stateEngineStage turns the normalized event into a transaction
// status change. Everything that must hold together (row lock,
// re-validated transition, audit row, provider-ref link, webhook
// link, outbox entry) happens in one database transaction.
//
// The snapshot from the persist stage is advisory only; the status
// that matters is re-read under the row lock.
type stateEngineStage struct {
	runInTx     TxRunner
	txnRepo     txnrepo.TransactionRepoInterface
	auditRepo   txnrepo.AuditRepoInterface
	webhookRepo webhookrepo.WebhookRepoInterface
	outboxRepo  outboxrepo.OutboxRepoInterface

	autoCreate    bool
	outboxEnabled bool
}

func NewStateEngineStage(deps Deps) Stage {
	return &stateEngineStage{
		runInTx:       deps.RunInTx,
		txnRepo:       deps.TxnRepo,
		auditRepo:     deps.AuditRepo,
		webhookRepo:   deps.WebhookRepo,
		outboxRepo:    deps.OutboxRepo,
		autoCreate:    deps.Options.AutoCreateTransactions,
		outboxEnabled: deps.Options.OutboxEnabled,
	}
}

func (s *stateEngineStage) Name() string { return "state-engine" }

func (s *stateEngineStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	if wc.Normalized == nil {
		return model.Stop()
	}
	event := wc.Normalized

	txn := wc.Transaction
	if txn == nil {
		if s.autoCreate && event.EventType.IsPaymentEvent() {
			created, result := s.autoCreateTransaction(ctx, wc)
			if created == nil {
				return result
			}
			txn = created
		} else {
			wc.SetFate(model.FateUnmatched, fmt.Sprintf("no transaction for provider_ref=%s application_ref=%s", wc.ProviderRef, wc.ApplicationRef))
			return model.Stop()
		}
	}

	target, drivesStatus := event.TargetStatus()
	if !drivesStatus {
		// Informational event (pending or failed refund); receipt is
		// already on the audit trail, nothing to transition
		wc.Transaction = txn
		return model.Proceed()
	}
	if txn.Status == target {
		// Redelivery after a lost ack; nothing to change
		wc.Transaction = txn
		return model.Stop()
	}

	// Cheap pre-check on the snapshot; the locked update re-validates
	if verdict := txmodel.ValidateTransition(txn.Status, target, txmodel.TransitionContext{Trigger: txmodel.TriggerWebhook}); !verdict.Allowed {
		s.reject(ctx, wc, txn.ID, &txmodel.TransitionRejectedError{From: txn.Status, To: target, Reason: verdict.Reason})
		return model.Stop()
	}

	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		return s.transitionWithTx(ctx, tx, wc, txn.ID, target)
	})
	if err != nil {
		var rejected *txmodel.TransitionRejectedError
		if errors.As(err, &rejected) {
			s.reject(ctx, wc, txn.ID, rejected)
			return model.Stop()
		}
		if errors.Is(err, txmodel.ErrProviderRefConflict) {
			s.reject(ctx, wc, txn.ID, &txmodel.TransitionRejectedError{From: txn.Status, To: target, Reason: err.Error()})
			return model.Stop()
		}
		return model.SoftFail(err)
	}
	return model.Proceed()
}

// autoCreateTransaction creates the missing PENDING transaction for
// an initial payment event. A concurrent claim may win the race on
// the unique application reference; then its row is adopted.
func (s *stateEngineStage) autoCreateTransaction(ctx context.Context, wc *model.WebhookContext) (*txmodel.Transaction, model.StageResult) {
	event := wc.Normalized

	applicationRef := wc.ApplicationRef
	if applicationRef == "" {
		applicationRef = wc.ProviderRef
	}
	if applicationRef == "" {
		wc.SetFate(model.FateUnmatched, "payment event carries no usable reference")
		return nil, model.Stop()
	}

	now := time.Now().UTC()
	txn := &txmodel.Transaction{
		ID:                 uuid.New(),
		ApplicationRef:     applicationRef,
		Provider:           wc.Provider,
		Status:             txmodel.StatusPending,
		VerificationMethod: txmodel.VerificationWebhookOnly,
		Amount:             event.Amount,
		Currency:           event.Currency,
		ProviderCreatedAt:  event.ProviderTimestamp,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}

	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if err := s.txnRepo.CreateWithTx(ctx, tx, txn); err != nil {
			return err
		}
		_, err := s.auditRepo.CreateWithTx(ctx, tx, txn.ID, txmodel.AuditEntry{
			Action:       txmodel.AuditActionTransactionCreated,
			ToStatus:     txmodel.StatusPending,
			TriggerType:  txmodel.TriggerWebhook,
			WebhookLogID: &wc.ProcessingID,
			Actor:        actorFor(wc.Provider),
			Reason:       "auto-created from unmatched payment event",
		})
		return err
	})
	if err != nil {
		if errors.Is(err, txmodel.ErrDuplicateApplicationRef) {
			existing, lookupErr := s.txnRepo.GetByApplicationRef(ctx, applicationRef)
			if lookupErr != nil {
				return nil, model.SoftFail(lookupErr)
			}
			return existing, model.Proceed()
		}
		return nil, model.SoftFail(err)
	}
	return txn, model.Proceed()
}

// transitionWithTx does the real work under the row lock
func (s *stateEngineStage) transitionWithTx(ctx context.Context, tx pgx.Tx, wc *model.WebhookContext, id uuid.UUID, target txmodel.TransactionStatus) error {
	event := wc.Normalized

	current, err := s.txnRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if current.Status == target {
		// A concurrent delivery applied the same transition first
		wc.Transaction = current
		return s.linkWithTx(ctx, tx, wc, id)
	}

	if event.ProviderRef != "" && !current.HasProviderRef() {
		if err := s.txnRepo.LinkProviderRefWithTx(ctx, tx, id, event.ProviderRef); err != nil {
			return err
		}
	}

	method := txmodel.VerificationWebhookOnly
	updated, err := s.txnRepo.UpdateStatusWithTx(ctx, tx, id, target, txmodel.TransitionContext{
		Trigger: txmodel.TriggerWebhook,
	}, txmodel.AuditEntry{
		Action:             txmodel.AuditActionStatusChanged,
		TriggerType:        txmodel.TriggerWebhook,
		WebhookLogID:       &wc.ProcessingID,
		VerificationMethod: &method,
		Actor:              actorFor(wc.Provider),
		Reason:             fmt.Sprintf("webhook event %s", event.EventType),
	})
	if err != nil {
		return err
	}
	wc.Transaction = updated
	wc.TransitionApplied = true

	if s.outboxEnabled && s.outboxRepo != nil {
		if err := s.enqueueWithTx(ctx, tx, wc); err != nil {
			return err
		}
	}
	return s.linkWithTx(ctx, tx, wc, id)
}

func (s *stateEngineStage) linkWithTx(ctx context.Context, tx pgx.Tx, wc *model.WebhookContext, id uuid.UUID) error {
	if wc.WebhookLog != nil && wc.WebhookLog.TransactionID != nil && *wc.WebhookLog.TransactionID == id {
		return nil
	}
	if err := s.webhookRepo.LinkTransactionWithTx(ctx, tx, wc.ProcessingID, id); err != nil {
		return err
	}
	if wc.WebhookLog != nil {
		txnID := id
		wc.WebhookLog.TransactionID = &txnID
	}
	return nil
}

func (s *stateEngineStage) enqueueWithTx(ctx context.Context, tx pgx.Tx, wc *model.WebhookContext) error {
	payload := model.DispatchPayload{
		EventType:     wc.Normalized.EventType,
		Transaction:   wc.Transaction,
		WebhookLogID:  wc.ProcessingID,
		TransactionID: &wc.Transaction.ID,
		Normalized:    wc.Normalized,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}
	entry := outboxmodel.NewEntry(outboxmodel.AggregateTransaction, wc.Transaction.ID, string(wc.Normalized.EventType), body)
	return s.outboxRepo.CreateWithTx(ctx, tx, entry)
}

// reject records the rejection: fate on the claim plus an audit row
// with an unchanged status pair and the refused target in metadata
func (s *stateEngineStage) reject(ctx context.Context, wc *model.WebhookContext, id uuid.UUID, rejected *txmodel.TransitionRejectedError) {
	wc.SetFate(model.FateTransitionRejected, rejected.Error())

	if wc.WebhookLog != nil && wc.WebhookLog.TransactionID == nil {
		if err := s.webhookRepo.LinkTransaction(ctx, wc.ProcessingID, id); err == nil {
			txnID := id
			wc.WebhookLog.TransactionID = &txnID
		}
	}

	from := rejected.From
	if _, err := s.auditRepo.Create(ctx, id, txmodel.AuditEntry{
		Action:       txmodel.AuditActionTransitionRejected,
		FromStatus:   &from,
		ToStatus:     from,
		TriggerType:  txmodel.TriggerWebhook,
		WebhookLogID: &wc.ProcessingID,
		Actor:        actorFor(wc.Provider),
		Reason:       rejected.Reason,
		Metadata: map[string]interface{}{
			"attempted_status": string(rejected.To),
			"rejection_reason": rejected.Reason,
		},
	}); err != nil {
		logger.Error("failed to record transition rejection", err)
	}
}

func actorFor(provider string) string {
	return "webhook:" + provider
}
