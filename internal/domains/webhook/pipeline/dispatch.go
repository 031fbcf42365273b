package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	outboxmodel "payhook/internal/domains/outbox/model"
	outboxrepo "payhook/internal/domains/outbox/repository"
	"payhook/internal/domains/webhook/dispatcher"
	"payhook/internal/domains/webhook/model"
)

// =====================================================
// STAGE 6: DISPATCH
// =====================================================

// dispatchStage fans the surviving claim out to subscribed handlers.
// When the outbox is enabled, nothing runs in-process: a claim that
// applied a transition already queued its entry inside the state
// engine's database transaction, and an informational claim (no
// status change) queues its own entry here. The drain job delivers
// both.
type dispatchStage struct {
	dispatcher *dispatcher.Dispatcher
	outboxRepo outboxrepo.OutboxRepoInterface
	runInTx    TxRunner

	outboxEnabled bool
}

func NewDispatchStage(deps Deps) Stage {
	return &dispatchStage{
		dispatcher:    deps.Dispatcher,
		outboxRepo:    deps.OutboxRepo,
		runInTx:       deps.RunInTx,
		outboxEnabled: deps.Options.OutboxEnabled,
	}
}

func (s *dispatchStage) Name() string { return "dispatch" }

func (s *dispatchStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	if wc.Fate().SkipsDispatch() || wc.Normalized == nil {
		return model.Stop()
	}

	payload := &model.DispatchPayload{
		EventType:    wc.Normalized.EventType,
		Transaction:  wc.Transaction,
		WebhookLogID: wc.ProcessingID,
		Normalized:   wc.Normalized,
	}
	if wc.Transaction != nil {
		payload.TransactionID = &wc.Transaction.ID
	}

	if s.outboxEnabled && s.outboxRepo != nil && s.runInTx != nil {
		if wc.TransitionApplied {
			wc.Dispatched = true
			return model.Stop()
		}
		if err := s.enqueue(ctx, wc, payload); err != nil {
			return model.SoftFail(err)
		}
		wc.Dispatched = true
		return model.Stop()
	}

	if s.dispatcher == nil {
		return model.Stop()
	}

	results := s.dispatcher.Dispatch(ctx, payload, 0, false)
	wc.Dispatched = len(results) > 0
	return model.Stop()
}

// enqueue writes the outbox entry for a claim that changed nothing;
// there is no status update to share a commit with
func (s *dispatchStage) enqueue(ctx context.Context, wc *model.WebhookContext, payload *model.DispatchPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}

	aggregateType := outboxmodel.AggregateWebhookLog
	aggregateID := wc.ProcessingID
	if wc.Transaction != nil {
		aggregateType = outboxmodel.AggregateTransaction
		aggregateID = wc.Transaction.ID
	}
	entry := outboxmodel.NewEntry(aggregateType, aggregateID, string(wc.Normalized.EventType), body)

	return s.runInTx(ctx, func(tx pgx.Tx) error {
		return s.outboxRepo.CreateWithTx(ctx, tx, entry)
	})
}
