package pipeline

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	txmodel "payhook/internal/domains/transaction/model"
	txnrepo "payhook/internal/domains/transaction/repository"
	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/repository"
	"payhook/pkg/logger"
)

// =====================================================
// STAGE 3: PERSIST CLAIM
// =====================================================

// persistStage writes the append-only claim record, linked to its
// transaction when the references already resolve to one. The claim
// row and its receipt audit commit together. This is the one stage
// whose failure is fatal: a claim that cannot be recorded must not
// be acknowledged, or the provider would never retry it.
type persistStage struct {
	runInTx     TxRunner
	webhookRepo repository.WebhookRepoInterface
	txnRepo     txnrepo.TransactionRepoInterface
	auditRepo   txnrepo.AuditRepoInterface
	redactKeys  []string
}

func NewPersistStage(deps Deps) Stage {
	return &persistStage{
		runInTx:     deps.RunInTx,
		webhookRepo: deps.WebhookRepo,
		txnRepo:     deps.TxnRepo,
		auditRepo:   deps.AuditRepo,
		redactKeys:  deps.Options.RedactKeys,
	}
}

func (s *persistStage) Name() string { return "persist" }

func (s *persistStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	// Provisional link; the state engine re-reads under lock before
	// any update
	txn := s.lookup(ctx, wc)

	log := &model.WebhookLog{
		ID:               wc.ProcessingID,
		Provider:         wc.Provider,
		SignatureValid:   wc.SignatureValid,
		ProcessingStatus: wc.Fate(),
		Headers:          RedactHeaders(wc.Headers),
		NormalizedEvent:  wc.Normalized,
		ReceivedAt:       wc.ReceivedAt,
	}
	if wc.IdempotencyKey != "" {
		log.ProviderEventID = &wc.IdempotencyKey
	}
	if wc.EventType != "" {
		log.EventType = &wc.EventType
	}
	if wc.Payload != nil {
		log.RawPayload = RedactPayload(wc.Payload, s.redactKeys)
	}
	if wc.ErrorMessage != "" {
		log.ErrorMessage = &wc.ErrorMessage
	}
	if txn != nil {
		log.TransactionID = &txn.ID
	}

	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if err := s.webhookRepo.CreateWithTx(ctx, tx, log); err != nil {
			return err
		}
		if txn == nil {
			return nil
		}
		_, err := s.auditRepo.CreateWithTx(ctx, tx, txn.ID, txmodel.AuditEntry{
			Action:       txmodel.AuditActionWebhookReceived,
			FromStatus:   &txn.Status,
			ToStatus:     txn.Status,
			TriggerType:  txmodel.TriggerWebhook,
			WebhookLogID: &wc.ProcessingID,
			Actor:        actorFor(wc.Provider),
			Reason:       "webhook claim received",
		})
		return err
	})
	if err != nil {
		return model.Abort(err)
	}
	wc.WebhookLog = log
	wc.Transaction = txn

	// Nothing downstream can help a claim that already failed
	if wc.HasFate() && wc.Fate() != model.FateProcessed {
		return model.Stop()
	}
	return model.Proceed()
}

// lookup resolves the claim's references to an existing transaction:
// provider reference first, application reference second
func (s *persistStage) lookup(ctx context.Context, wc *model.WebhookContext) *txmodel.Transaction {
	if wc.Normalized == nil {
		return nil
	}
	if wc.ProviderRef != "" {
		txn, err := s.txnRepo.GetByProviderRef(ctx, wc.Provider, wc.ProviderRef)
		if err == nil {
			return txn
		}
		if !errors.Is(err, txmodel.ErrTransactionNotFound) {
			logger.Error("provider ref lookup failed", err)
		}
	}
	if wc.ApplicationRef != "" {
		txn, err := s.txnRepo.GetByApplicationRef(ctx, wc.ApplicationRef)
		if err == nil {
			return txn
		}
		if !errors.Is(err, txmodel.ErrTransactionNotFound) {
			logger.Error("application ref lookup failed", err)
		}
	}
	return nil
}
