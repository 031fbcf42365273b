package pipeline

import (
	"context"
	"fmt"
	"time"

	txmodel "payhook/internal/domains/transaction/model"
	txnrepo "payhook/internal/domains/transaction/repository"
	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/repository"
	"payhook/pkg/logger"
)

// =====================================================
// STAGE 4: DEDUPLICATION
// =====================================================

// dedupeStage detects redeliveries by idempotency key. The indexed
// database query is the contract: it finds the settled original no
// matter what redis remembers, so a claim-key TTL expiry or a cache
// flush never lets a redelivery through. The SETNX claim only breaks
// ties between concurrent deliveries whose rows have not settled yet.
//
// Storage errors here are soft: a false-negative dedup is absorbed by
// the state engine's same-status check, while failing closed would
// drop claims.
type dedupeStage struct {
	webhookRepo repository.WebhookRepoInterface
	auditRepo   txnrepo.AuditRepoInterface
	cache       DedupCache
}

func NewDedupeStage(webhookRepo repository.WebhookRepoInterface, auditRepo txnrepo.AuditRepoInterface, cache DedupCache) Stage {
	return &dedupeStage{webhookRepo: webhookRepo, auditRepo: auditRepo, cache: cache}
}

func (s *dedupeStage) Name() string { return "dedupe" }

func (s *dedupeStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	if wc.IdempotencyKey == "" {
		return model.Proceed()
	}

	claimed := true
	if s.cache != nil {
		key := fmt.Sprintf("webhook:dedup:%s:%s", wc.Provider, wc.IdempotencyKey)
		first, err := s.cache.ClaimOnce(ctx, key, model.DedupClaimTTLHours*time.Hour)
		if err != nil {
			logger.Warn("dedup cache unavailable, relying on database check alone", map[string]interface{}{
				"provider": wc.Provider,
				"error":    err.Error(),
			})
		} else {
			claimed = first
		}
	}

	original, err := s.webhookRepo.FindDuplicate(ctx, wc.Provider, wc.IdempotencyKey, wc.ProcessingID)
	if err != nil {
		logger.ErrorFields("duplicate check failed, continuing", err, map[string]interface{}{
			"provider": wc.Provider,
		})
		return model.SoftFail(err)
	}
	if original == nil {
		if !claimed {
			// A concurrent delivery holds the claim key but has not
			// settled its row yet; it wins, this one yields
			wc.SetFate(model.FateDuplicate, "duplicate of an in-flight delivery")
			return model.Stop()
		}
		return model.Proceed()
	}

	wc.SetFate(model.FateDuplicate, fmt.Sprintf("duplicate of claim %s", original.ID))

	if wc.Transaction != nil {
		if _, err := s.auditRepo.Create(ctx, wc.Transaction.ID, txmodel.AuditEntry{
			Action:       txmodel.AuditActionWebhookReceived,
			FromStatus:   &wc.Transaction.Status,
			ToStatus:     wc.Transaction.Status,
			TriggerType:  txmodel.TriggerWebhook,
			WebhookLogID: &wc.ProcessingID,
			Actor:        actorFor(wc.Provider),
			Reason:       fmt.Sprintf("duplicate delivery of claim %s", original.ID),
		}); err != nil {
			logger.Error("failed to record duplicate delivery", err)
		}
	} else if original.TransactionID != nil {
		if err := s.webhookRepo.LinkTransaction(ctx, wc.ProcessingID, *original.TransactionID); err == nil {
			wc.WebhookLog.TransactionID = original.TransactionID
		}
	}
	return model.Stop()
}
