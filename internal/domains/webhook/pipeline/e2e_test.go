package pipeline_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxmodel "payhook/internal/domains/outbox/model"
	txmodel "payhook/internal/domains/transaction/model"
	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/adapter/paystack"
	"payhook/internal/domains/webhook/dispatcher"
	whmodel "payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/pipeline"
	"payhook/internal/domains/webhook/service"
)

const testSecret = "sk_test_AAA"

type fixture struct {
	webhookRepo *memWebhookRepo
	txnRepo     *memTxnRepo
	auditRepo   *memAuditRepo
	outboxRepo  *memOutboxRepo
	cache       *memCache
	processor   *service.Processor

	mu         sync.Mutex
	dispatched []*whmodel.DispatchPayload
}

func newFixture(opts pipeline.Options) *fixture {
	f := &fixture{
		webhookRepo: newMemWebhookRepo(),
		auditRepo:   newMemAuditRepo(),
		outboxRepo:  newMemOutboxRepo(),
		cache:       newMemCache(),
	}
	f.txnRepo = newMemTxnRepo(f.auditRepo)

	registry := adapter.NewRegistry(
		adapter.Registration{Adapter: paystack.New(), Secrets: []string{testSecret}},
	)

	d := dispatcher.NewDispatcher(nil,
		dispatcher.Binding{Handler: dispatcher.NewHandlerFunc("recorder", func(_ context.Context, payload *whmodel.DispatchPayload) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.dispatched = append(f.dispatched, payload)
			return nil
		})},
	)

	stages := pipeline.BuildStages(pipeline.Deps{
		Registry:    registry,
		RunInTx:     directTxRunner,
		WebhookRepo: f.webhookRepo,
		TxnRepo:     f.txnRepo,
		AuditRepo:   f.auditRepo,
		OutboxRepo:  f.outboxRepo,
		Cache:       f.cache,
		Dispatcher:  d,
		Options:     opts,
	})
	f.processor = service.NewProcessor(stages, f.webhookRepo, 5*time.Second, service.Hooks{})
	return f
}

func (f *fixture) seedTransaction(status txmodel.TransactionStatus) *txmodel.Transaction {
	providerRef := "ref_1"
	txn := &txmodel.Transaction{
		ID:                 uuid.New(),
		ApplicationRef:     "order_1",
		Provider:           "paystack",
		ProviderRef:        &providerRef,
		Status:             status,
		VerificationMethod: txmodel.VerificationWebhookOnly,
		Amount:             10000,
		Currency:           "NGN",
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
		Version:            1,
	}
	f.txnRepo.seed(txn)
	return txn
}

func signedHeaders(body []byte) map[string]string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return map[string]string{
		"X-Paystack-Signature": hex.EncodeToString(mac.Sum(nil)),
		"Content-Type":         "application/json",
	}
}

func chargeSuccessBody(reference string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "charge.success",
		"data": {
			"id": 42,
			"reference": %q,
			"amount": 10000,
			"currency": "NGN",
			"status": "success",
			"customer": {"email": "buyer@example.com"}
		}
	}`, reference))
}

func (f *fixture) statusChanges(txnID uuid.UUID) []*txmodel.AuditLog {
	rows, _ := f.auditRepo.ListByTransactionID(context.Background(), txnID)
	out := []*txmodel.AuditLog{}
	for _, row := range rows {
		if row.Action == txmodel.AuditActionStatusChanged {
			out = append(out, row)
		}
	}
	return out
}

func TestHappyPath(t *testing.T) {
	f := newFixture(pipeline.Options{RedactKeys: []string{"card", "cvv"}})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))

	assert.True(t, result.Success)
	assert.Equal(t, whmodel.FateProcessed, result.ProcessingStatus)
	require.NotNil(t, result.WebhookLogID)
	require.NotNil(t, result.TransactionID)
	assert.Equal(t, txn.ID, *result.TransactionID)

	updated, err := f.txnRepo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txmodel.StatusSuccessful, updated.Status)

	changes := f.statusChanges(txn.ID)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].FromStatus)
	assert.Equal(t, txmodel.StatusProcessing, *changes[0].FromStatus)
	assert.Equal(t, txmodel.StatusSuccessful, changes[0].ToStatus)
	assert.Equal(t, txmodel.TriggerWebhook, changes[0].TriggerType)
	assert.Equal(t, *result.WebhookLogID, *changes[0].WebhookLogID)

	log, err := f.webhookRepo.GetByID(context.Background(), *result.WebhookLogID)
	require.NoError(t, err)
	assert.Equal(t, whmodel.FateProcessed, log.ProcessingStatus)
	assert.True(t, log.SignatureValid)
	require.NotNil(t, log.TransactionID)
	assert.Equal(t, txn.ID, *log.TransactionID)

	assert.True(t, result.Metrics.SignatureVerified)
	assert.True(t, result.Metrics.TransitionApplied)
	assert.True(t, result.Metrics.Dispatched)

	require.Len(t, f.dispatched, 1)
	assert.Equal(t, whmodel.EventPaymentSuccessful, f.dispatched[0].EventType)
}

func TestDuplicateDelivery(t *testing.T) {
	f := newFixture(pipeline.Options{})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	headers := signedHeaders(body)

	first := f.processor.Process(context.Background(), "paystack", body, headers)
	require.Equal(t, whmodel.FateProcessed, first.ProcessingStatus)

	second := f.processor.Process(context.Background(), "paystack", body, headers)
	assert.Equal(t, whmodel.FateDuplicate, second.ProcessingStatus)
	assert.True(t, second.Success)

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusSuccessful, updated.Status)
	assert.Len(t, f.statusChanges(txn.ID), 1)

	log, err := f.webhookRepo.GetByID(context.Background(), *second.WebhookLogID)
	require.NoError(t, err)
	assert.Equal(t, whmodel.FateDuplicate, log.ProcessingStatus)

	// Dedup fast path via cache still falls through to the database
	// check when the cache forgets
	f.cache.claimed = map[string]bool{}
	third := f.processor.Process(context.Background(), "paystack", body, headers)
	assert.Equal(t, whmodel.FateDuplicate, third.ProcessingStatus)
	assert.Len(t, f.statusChanges(txn.ID), 1)
}

func TestDuplicateAfterClaimExpiry(t *testing.T) {
	f := newFixture(pipeline.Options{})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	headers := signedHeaders(body)

	first := f.processor.Process(context.Background(), "paystack", body, headers)
	require.Equal(t, whmodel.FateProcessed, first.ProcessingStatus)

	// The claim key outlived its TTL (or redis was flushed); winning a
	// fresh SETNX must not reclassify the redelivery as processed
	f.cache.claimed = map[string]bool{}

	second := f.processor.Process(context.Background(), "paystack", body, headers)
	assert.Equal(t, whmodel.FateDuplicate, second.ProcessingStatus)
	assert.True(t, second.Success)

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusSuccessful, updated.Status)
	assert.Len(t, f.statusChanges(txn.ID), 1)
}

func TestBadSignature(t *testing.T) {
	f := newFixture(pipeline.Options{})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	headers := signedHeaders(body)
	headers["X-Paystack-Signature"] = "deadbeef" + headers["X-Paystack-Signature"][8:]

	result := f.processor.Process(context.Background(), "paystack", body, headers)

	assert.False(t, result.Success)
	assert.Equal(t, whmodel.FateSignatureFailed, result.ProcessingStatus)
	require.NotNil(t, result.WebhookLogID)

	log, err := f.webhookRepo.GetByID(context.Background(), *result.WebhookLogID)
	require.NoError(t, err)
	assert.False(t, log.SignatureValid)
	assert.Nil(t, log.TransactionID)

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusProcessing, updated.Status)
	assert.Empty(t, f.statusChanges(txn.ID))
	assert.Empty(t, f.dispatched)
}

func TestUnmatchedClaim(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_unknown")
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))

	assert.False(t, result.Success)
	assert.Equal(t, whmodel.FateUnmatched, result.ProcessingStatus)
	require.NotNil(t, result.WebhookLogID)
	assert.Nil(t, result.TransactionID)

	log, err := f.webhookRepo.GetByID(context.Background(), *result.WebhookLogID)
	require.NoError(t, err)
	assert.Nil(t, log.TransactionID)

	// Auto-create is off; no transaction materialized
	_, err = f.txnRepo.GetByApplicationRef(context.Background(), "ref_unknown")
	assert.Error(t, err)
}

func TestIllegalTransition(t *testing.T) {
	f := newFixture(pipeline.Options{})
	txn := f.seedTransaction(txmodel.StatusRefunded)

	body := chargeSuccessBody("ref_1")
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))

	assert.Equal(t, whmodel.FateTransitionRejected, result.ProcessingStatus)

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusRefunded, updated.Status)
	assert.Empty(t, f.statusChanges(txn.ID))

	rows, _ := f.auditRepo.ListByTransactionID(context.Background(), txn.ID)
	var rejection *txmodel.AuditLog
	for _, row := range rows {
		if row.Action == txmodel.AuditActionTransitionRejected {
			rejection = row
		}
	}
	require.NotNil(t, rejection)
	require.NotNil(t, rejection.FromStatus)
	assert.Equal(t, txmodel.StatusRefunded, *rejection.FromStatus)
	assert.Equal(t, txmodel.StatusRefunded, rejection.ToStatus)
	assert.Equal(t, string(txmodel.StatusSuccessful), rejection.Metadata["attempted_status"])
	assert.NotEmpty(t, rejection.Metadata["rejection_reason"])
}

func TestConcurrentDuplicates(t *testing.T) {
	f := newFixture(pipeline.Options{})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	headers := signedHeaders(body)

	results := make([]*whmodel.ProcessingResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.processor.Process(context.Background(), "paystack", body, headers)
		}(i)
	}
	wg.Wait()

	fates := map[whmodel.ProcessingStatus]int{}
	for _, r := range results {
		fates[r.ProcessingStatus]++
	}
	assert.Equal(t, 1, fates[whmodel.FateProcessed])
	assert.Equal(t, 1, fates[whmodel.FateDuplicate])

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusSuccessful, updated.Status)
	assert.Len(t, f.statusChanges(txn.ID), 1)
}

func TestAutoCreateTransaction(t *testing.T) {
	f := newFixture(pipeline.Options{AutoCreateTransactions: true})

	body := chargeSuccessBody("ref_new")
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))

	// PENDING cannot jump straight to SUCCESSFUL, so the auto-created
	// row stays PENDING and the claim is rejected by the state machine
	assert.Equal(t, whmodel.FateTransitionRejected, result.ProcessingStatus)

	created, err := f.txnRepo.GetByApplicationRef(context.Background(), "ref_new")
	require.NoError(t, err)
	assert.Equal(t, txmodel.StatusPending, created.Status)
	assert.Equal(t, int64(10000), created.Amount)

	actions := f.auditRepo.actions(created.ID)
	assert.Contains(t, actions, txmodel.AuditActionTransactionCreated)
	assert.Contains(t, actions, txmodel.AuditActionTransitionRejected)
}

func TestOutboxCoupling(t *testing.T) {
	f := newFixture(pipeline.Options{OutboxEnabled: true})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))
	require.Equal(t, whmodel.FateProcessed, result.ProcessingStatus)

	// Delivery is deferred to the drain worker
	assert.Empty(t, f.dispatched)

	due, err := f.outboxRepo.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, string(whmodel.EventPaymentSuccessful), due[0].EventType)
	assert.Equal(t, outboxmodel.StatusPending, due[0].Status)
	assert.Equal(t, outboxmodel.AggregateTransaction, due[0].AggregateType)
	assert.Equal(t, txn.ID, due[0].AggregateID)

	// A rejected claim leaves nothing queued
	f2 := newFixture(pipeline.Options{OutboxEnabled: true})
	f2.seedTransaction(txmodel.StatusRefunded)
	f2.processor.Process(context.Background(), "paystack", body, signedHeaders(body))
	due2, _ := f2.outboxRepo.FetchDue(context.Background(), 10)
	assert.Empty(t, due2)
}

func TestOutboxQueuesInformationalEvent(t *testing.T) {
	f := newFixture(pipeline.Options{OutboxEnabled: true})
	txn := f.seedTransaction(txmodel.StatusSuccessful)

	body := []byte(`{
		"event": "refund.pending",
		"data": {
			"id": 77,
			"reference": "ref_1",
			"amount": 10000,
			"currency": "NGN"
		}
	}`)
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))

	// No status change, but subscribers still hear about it through
	// the outbox, never inline
	require.Equal(t, whmodel.FateProcessed, result.ProcessingStatus)
	assert.False(t, result.Metrics.TransitionApplied)
	assert.True(t, result.Metrics.Dispatched)
	assert.Empty(t, f.dispatched)

	due, err := f.outboxRepo.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, string(whmodel.EventRefundPending), due[0].EventType)
	assert.Equal(t, outboxmodel.AggregateTransaction, due[0].AggregateType)
	assert.Equal(t, txn.ID, due[0].AggregateID)

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusSuccessful, updated.Status)
	assert.Empty(t, f.statusChanges(txn.ID))
}

func TestPersistFailureRecordsNoAudit(t *testing.T) {
	f := newFixture(pipeline.Options{})
	txn := f.seedTransaction(txmodel.StatusProcessing)
	f.webhookRepo.failCreate = errors.New("insert failed")

	body := chargeSuccessBody("ref_1")
	result := f.processor.Process(context.Background(), "paystack", body, signedHeaders(body))

	assert.False(t, result.Success)
	assert.Nil(t, result.WebhookLogID)

	// The receipt audit commits with the claim row or not at all
	rows, err := f.auditRepo.ListByTransactionID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusProcessing, updated.Status)
}

func TestSkipSignatureEscapeHatch(t *testing.T) {
	f := newFixture(pipeline.Options{SkipSignatureCheck: true})
	txn := f.seedTransaction(txmodel.StatusProcessing)

	body := chargeSuccessBody("ref_1")
	result := f.processor.Process(context.Background(), "paystack", body, map[string]string{})

	assert.Equal(t, whmodel.FateProcessed, result.ProcessingStatus)
	updated, _ := f.txnRepo.GetByID(context.Background(), txn.ID)
	assert.Equal(t, txmodel.StatusSuccessful, updated.Status)
}

func TestRedactedPersistedPayload(t *testing.T) {
	f := newFixture(pipeline.Options{RedactKeys: []string{"card", "authorization_code"}})
	f.seedTransaction(txmodel.StatusProcessing)

	body := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 42,
			"reference": "ref_1",
			"amount": 10000,
			"currency": "NGN",
			"authorization_code": "AUTH_xyz",
			"card": {"last4": "4081"}
		}
	}`)
	headers := signedHeaders(body)
	headers["Authorization"] = "Bearer secret-token"

	result := f.processor.Process(context.Background(), "paystack", body, headers)
	require.NotNil(t, result.WebhookLogID)

	log, err := f.webhookRepo.GetByID(context.Background(), *result.WebhookLogID)
	require.NoError(t, err)

	data := log.RawPayload["data"].(map[string]interface{})
	assert.Equal(t, whmodel.RedactedPlaceholder, data["authorization_code"])
	assert.Equal(t, whmodel.RedactedPlaceholder, data["card"])
	assert.Equal(t, "ref_1", data["reference"])
	assert.Equal(t, whmodel.RedactedPlaceholder, log.Headers["authorization"])
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture(pipeline.Options{})

	result := f.processor.Process(context.Background(), "squarepay", []byte(`{}`), map[string]string{})

	assert.Equal(t, whmodel.FateSignatureFailed, result.ProcessingStatus)
	require.NotNil(t, result.WebhookLogID)
	log, err := f.webhookRepo.GetByID(context.Background(), *result.WebhookLogID)
	require.NoError(t, err)
	assert.False(t, log.SignatureValid)
}
