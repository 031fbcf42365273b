package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	outboxmodel "payhook/internal/domains/outbox/model"
	txmodel "payhook/internal/domains/transaction/model"
	whmodel "payhook/internal/domains/webhook/model"
	"payhook/pkg/database"
)

// In-memory doubles for the storage ports. They reproduce the
// semantics the stages depend on (state machine validation, duplicate
// detection, unique application refs) without a database.

// =====================================================
// WEBHOOK REPO
// =====================================================

type memWebhookRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*whmodel.WebhookLog

	failCreate error
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{logs: map[uuid.UUID]*whmodel.WebhookLog{}}
}

func (r *memWebhookRepo) Create(_ context.Context, log *whmodel.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	copied := *log
	r.logs[log.ID] = &copied
	return nil
}

func (r *memWebhookRepo) CreateWithTx(ctx context.Context, _ pgx.Tx, log *whmodel.WebhookLog) error {
	return r.Create(ctx, log)
}

func (r *memWebhookRepo) GetByID(_ context.Context, id uuid.UUID) (*whmodel.WebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return nil, whmodel.ErrWebhookNotFound
	}
	return log, nil
}

func (r *memWebhookRepo) FindDuplicate(_ context.Context, provider, providerEventID string, excludeID uuid.UUID) (*whmodel.WebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *whmodel.WebhookLog
	for _, log := range r.logs {
		if log.ID == excludeID || log.Provider != provider {
			continue
		}
		if log.ProviderEventID == nil || *log.ProviderEventID != providerEventID {
			continue
		}
		switch log.ProcessingStatus {
		case whmodel.FateSignatureFailed, whmodel.FateParseError, whmodel.FateDuplicate:
			continue
		}
		// Unsettled rows belong to in-flight deliveries
		if log.ProcessingDurationMs == nil {
			continue
		}
		if oldest == nil || log.ReceivedAt.Before(oldest.ReceivedAt) {
			oldest = log
		}
	}
	return oldest, nil
}

func (r *memWebhookRepo) UpdateOutcome(_ context.Context, id uuid.UUID, status whmodel.ProcessingStatus, errorMessage *string, durationMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return whmodel.ErrWebhookNotFound
	}
	log.ProcessingStatus = status
	log.ErrorMessage = errorMessage
	log.ProcessingDurationMs = &durationMs
	return nil
}

func (r *memWebhookRepo) LinkTransaction(_ context.Context, id, transactionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return whmodel.ErrWebhookNotFound
	}
	log.TransactionID = &transactionID
	return nil
}

func (r *memWebhookRepo) LinkTransactionWithTx(ctx context.Context, _ pgx.Tx, id, transactionID uuid.UUID) error {
	return r.LinkTransaction(ctx, id, transactionID)
}

func (r *memWebhookRepo) List(context.Context, *whmodel.ListWebhooksRequest) ([]*whmodel.WebhookLog, int64, error) {
	return nil, 0, nil
}

func (r *memWebhookRepo) GetStats(context.Context, time.Time) (*whmodel.WebhookStats, error) {
	return &whmodel.WebhookStats{}, nil
}

func (r *memWebhookRepo) ListOlderThan(context.Context, time.Time, int) ([]*whmodel.WebhookLog, error) {
	return nil, nil
}

func (r *memWebhookRepo) DeleteByIDs(context.Context, []uuid.UUID) (int64, error) {
	return 0, nil
}

// =====================================================
// AUDIT REPO
// =====================================================

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*txmodel.AuditLog
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{}
}

func (r *memAuditRepo) Create(_ context.Context, transactionID uuid.UUID, entry txmodel.AuditEntry) (*txmodel.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := &txmodel.AuditLog{
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
		CreatedAt:          time.Now().UTC(),
	}
	r.entries = append(r.entries, row)
	return row, nil
}

func (r *memAuditRepo) CreateWithTx(ctx context.Context, _ pgx.Tx, transactionID uuid.UUID, entry txmodel.AuditEntry) (*txmodel.AuditLog, error) {
	return r.Create(ctx, transactionID, entry)
}

func (r *memAuditRepo) ListByTransactionID(_ context.Context, transactionID uuid.UUID) ([]*txmodel.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*txmodel.AuditLog{}
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) actions(transactionID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e.Action)
		}
	}
	return out
}

// =====================================================
// TRANSACTION REPO
// =====================================================

type memTxnRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*txmodel.Transaction
	audit *memAuditRepo
}

func newMemTxnRepo(audit *memAuditRepo) *memTxnRepo {
	return &memTxnRepo{byID: map[uuid.UUID]*txmodel.Transaction{}, audit: audit}
}

func (r *memTxnRepo) seed(txn *txmodel.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[txn.ID] = txn
}

func (r *memTxnRepo) Create(_ context.Context, txn *txmodel.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ApplicationRef == txn.ApplicationRef {
			return txmodel.NewDuplicateAppRefError(txn.ApplicationRef)
		}
	}
	r.byID[txn.ID] = txn
	return nil
}

func (r *memTxnRepo) CreateWithTx(ctx context.Context, _ pgx.Tx, txn *txmodel.Transaction) error {
	return r.Create(ctx, txn)
}

func (r *memTxnRepo) GetByID(_ context.Context, id uuid.UUID) (*txmodel.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return nil, txmodel.NewNotFoundError(id.String())
	}
	return txn, nil
}

func (r *memTxnRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*txmodel.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *memTxnRepo) GetByApplicationRef(_ context.Context, applicationRef string) (*txmodel.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.ApplicationRef == applicationRef {
			return txn, nil
		}
	}
	return nil, txmodel.NewNotFoundError(applicationRef)
}

func (r *memTxnRepo) GetByProviderRef(_ context.Context, provider, providerRef string) (*txmodel.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.Provider == provider && txn.ProviderRef != nil && *txn.ProviderRef == providerRef {
			return txn, nil
		}
	}
	return nil, txmodel.NewNotFoundError(providerRef)
}

func (r *memTxnRepo) UpdateStatusWithTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, target txmodel.TransactionStatus, tctx txmodel.TransitionContext, entry txmodel.AuditEntry) (*txmodel.Transaction, error) {
	r.mu.Lock()
	txn, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return nil, txmodel.NewNotFoundError(id.String())
	}

	result := txmodel.ValidateTransition(txn.Status, target, tctx)
	if !result.Allowed {
		rejection := &txmodel.TransitionRejectedError{From: txn.Status, To: target, Reason: result.Reason}
		r.mu.Unlock()
		return nil, rejection
	}

	from := txn.Status
	txn.Status = target
	txn.UpdatedAt = time.Now().UTC()
	txn.Version++
	r.mu.Unlock()

	entry.FromStatus = &from
	entry.ToStatus = target
	if _, err := r.audit.Create(ctx, id, entry); err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *memTxnRepo) UpdateStatus(ctx context.Context, id uuid.UUID, target txmodel.TransactionStatus, tctx txmodel.TransitionContext, entry txmodel.AuditEntry) (*txmodel.Transaction, error) {
	return r.UpdateStatusWithTx(ctx, nil, id, target, tctx, entry)
}

func (r *memTxnRepo) LinkProviderRefWithTx(_ context.Context, _ pgx.Tx, id uuid.UUID, providerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return txmodel.NewNotFoundError(id.String())
	}
	if txn.ProviderRef != nil && *txn.ProviderRef != providerRef {
		return txmodel.NewProviderRefConflictError(*txn.ProviderRef, providerRef)
	}
	txn.ProviderRef = &providerRef
	return nil
}

func (r *memTxnRepo) MarkAsProcessing(context.Context, uuid.UUID, string, *txmodel.VerificationMethod, txmodel.AuditEntry) (*txmodel.Transaction, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func (r *memTxnRepo) MarkVerified(context.Context, uuid.UUID, txmodel.VerificationMethod, txmodel.AuditEntry) error {
	return fmt.Errorf("not implemented in fake")
}

func (r *memTxnRepo) ExpirePending(context.Context, time.Time, string) (int, error) {
	return 0, nil
}

func (r *memTxnRepo) AdminList(context.Context, map[string]interface{}, int, int) ([]*txmodel.Transaction, int, error) {
	return nil, 0, nil
}

// =====================================================
// OUTBOX REPO
// =====================================================

type memOutboxRepo struct {
	mu      sync.Mutex
	entries []*outboxmodel.Entry
}

func newMemOutboxRepo() *memOutboxRepo {
	return &memOutboxRepo{}
}

func (r *memOutboxRepo) CreateWithTx(_ context.Context, _ pgx.Tx, entry *outboxmodel.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memOutboxRepo) FetchDue(_ context.Context, limit int) ([]*outboxmodel.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*outboxmodel.Entry{}
	now := time.Now().UTC()
	for _, e := range r.entries {
		due := e.Status == outboxmodel.StatusPending || e.Status == outboxmodel.StatusFailed
		if due && !e.NextAttemptAt.After(now) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memOutboxRepo) MarkProcessed(context.Context, *outboxmodel.Entry) error { return nil }
func (r *memOutboxRepo) MarkFailed(context.Context, *outboxmodel.Entry) error    { return nil }

func (r *memOutboxRepo) PurgeProcessed(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memOutboxRepo) CountByStatus(context.Context) (map[string]int64, error) {
	return nil, nil
}

// =====================================================
// DEDUP CACHE
// =====================================================

type memCache struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func newMemCache() *memCache {
	return &memCache{claimed: map[string]bool{}}
}

func (c *memCache) ClaimOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.claimed[key] {
		return false, nil
	}
	c.claimed[key] = true
	return true, nil
}

func (c *memCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, key)
	return nil
}

// directTxRunner runs the function without a database; the fakes
// ignore the tx handle
func directTxRunner(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}
