package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/pipeline"
)

// stubStage lets each test script the pipeline behavior
type stubStage struct {
	name string
	fn   func(ctx context.Context, wc *model.WebhookContext) model.StageResult
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	return s.fn(ctx, wc)
}

func stages(ss ...pipeline.Stage) []pipeline.Stage { return ss }

// nullWebhookRepo satisfies the port; only UpdateOutcome records
type nullWebhookRepo struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]model.ProcessingStatus
}

func newNullWebhookRepo() *nullWebhookRepo {
	return &nullWebhookRepo{outcomes: map[uuid.UUID]model.ProcessingStatus{}}
}

func (r *nullWebhookRepo) outcome(id uuid.UUID) model.ProcessingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[id]
}

func (r *nullWebhookRepo) Create(context.Context, *model.WebhookLog) error { return nil }

func (r *nullWebhookRepo) CreateWithTx(context.Context, pgx.Tx, *model.WebhookLog) error {
	return nil
}

func (r *nullWebhookRepo) GetByID(context.Context, uuid.UUID) (*model.WebhookLog, error) {
	return nil, model.ErrWebhookNotFound
}

func (r *nullWebhookRepo) FindDuplicate(context.Context, string, string, uuid.UUID) (*model.WebhookLog, error) {
	return nil, nil
}

func (r *nullWebhookRepo) UpdateOutcome(_ context.Context, id uuid.UUID, status model.ProcessingStatus, _ *string, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[id] = status
	return nil
}

func (r *nullWebhookRepo) LinkTransaction(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (r *nullWebhookRepo) LinkTransactionWithTx(context.Context, pgx.Tx, uuid.UUID, uuid.UUID) error {
	return nil
}

func (r *nullWebhookRepo) List(context.Context, *model.ListWebhooksRequest) ([]*model.WebhookLog, int64, error) {
	return nil, 0, nil
}

func (r *nullWebhookRepo) GetStats(context.Context, time.Time) (*model.WebhookStats, error) {
	return nil, nil
}

func (r *nullWebhookRepo) ListOlderThan(context.Context, time.Time, int) ([]*model.WebhookLog, error) {
	return nil, nil
}

func (r *nullWebhookRepo) DeleteByIDs(context.Context, []uuid.UUID) (int64, error) { return 0, nil }

func TestProcessorLowercasesHeaders(t *testing.T) {
	var captured map[string]string
	stage := &stubStage{name: "capture", fn: func(_ context.Context, wc *model.WebhookContext) model.StageResult {
		captured = wc.Headers
		return model.Stop()
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{})
	p.Process(context.Background(), "paystack", nil, map[string]string{
		"X-Paystack-Signature": "abc",
		"Content-Type":         "application/json",
	})

	require.NotNil(t, captured)
	assert.Equal(t, "abc", captured["x-paystack-signature"])
	assert.Equal(t, "application/json", captured["content-type"])
}

func TestProcessorDefaultFate(t *testing.T) {
	stage := &stubStage{name: "noop", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		return model.Proceed()
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{})
	result := p.Process(context.Background(), "paystack", nil, nil)

	assert.True(t, result.Success)
	assert.Equal(t, model.FateProcessed, result.ProcessingStatus)
}

func TestProcessorStageDurationsRecorded(t *testing.T) {
	first := &stubStage{name: "first", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		return model.Proceed()
	}}
	second := &stubStage{name: "second", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		return model.Stop()
	}}

	p := NewProcessor(stages(first, second), newNullWebhookRepo(), time.Second, Hooks{})
	result := p.Process(context.Background(), "paystack", nil, nil)

	assert.Contains(t, result.Metrics.StageDurationsMs, "first")
	assert.Contains(t, result.Metrics.StageDurationsMs, "second")
}

func TestProcessorTimeout(t *testing.T) {
	stage := &stubStage{name: "slow", fn: func(ctx context.Context, _ *model.WebhookContext) model.StageResult {
		<-ctx.Done()
		return model.Stop()
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), 20*time.Millisecond, Hooks{})
	result := p.Process(context.Background(), "paystack", nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, model.FateParseError, result.ProcessingStatus)
	assert.Equal(t, model.ErrPipelineTimeout.Error(), result.Error)
}

func TestProcessorTimeoutIsolatesOverrunningStage(t *testing.T) {
	repo := newNullWebhookRepo()
	logID := uuid.New()
	release := make(chan struct{})

	// The stage outlives the deadline, then keeps mutating the shared
	// context the way a stalled storage call would on its way out
	stage := &stubStage{name: "stalled", fn: func(_ context.Context, wc *model.WebhookContext) model.StageResult {
		wc.WebhookLog = &model.WebhookLog{ID: logID}
		<-release
		wc.SetFate(model.FateUnmatched, "late write after deadline")
		return model.Stop()
	}}

	p := NewProcessor(stages(stage), repo, 20*time.Millisecond, Hooks{})
	result := p.Process(context.Background(), "paystack", nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, model.FateParseError, result.ProcessingStatus)
	assert.Equal(t, model.ErrPipelineTimeout.Error(), result.Error)
	assert.Nil(t, result.WebhookLogID)

	// Let the stage finish; its late writes must not leak into the
	// settled result, and the claim row gets the timeout fate
	close(release)
	require.Eventually(t, func() bool {
		return repo.outcome(logID) == model.FateParseError
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, model.FateParseError, result.ProcessingStatus)
	assert.Equal(t, model.ErrPipelineTimeout.Error(), result.Error)
	assert.Empty(t, result.Metrics.StageDurationsMs)
}

func TestProcessorAbortSurfacesError(t *testing.T) {
	stage := &stubStage{name: "persist", fn: func(_ context.Context, wc *model.WebhookContext) model.StageResult {
		return model.Abort(model.ErrWebhookNotFound)
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{})
	result := p.Process(context.Background(), "paystack", nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrWebhookNotFound.Error(), result.Error)
}

func TestProcessorContainsStagePanic(t *testing.T) {
	stage := &stubStage{name: "explosive", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		panic("boom")
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{})
	result := p.Process(context.Background(), "paystack", nil, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "pipeline panic")
}

func TestProcessorRethrowPanics(t *testing.T) {
	stage := &stubStage{name: "explosive", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		panic("boom")
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{})
	p.RethrowPanics()

	require.Panics(t, func() {
		p.Process(context.Background(), "paystack", nil, nil)
	})
}

func TestProcessorHookInvoked(t *testing.T) {
	var hooked *model.ProcessingResult
	stage := &stubStage{name: "noop", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		return model.Stop()
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{
		OnFate: func(result *model.ProcessingResult) { hooked = result },
	})
	result := p.Process(context.Background(), "paystack", nil, nil)

	require.NotNil(t, hooked)
	assert.Equal(t, result.ProcessingStatus, hooked.ProcessingStatus)
}

func TestProcessorErrorHookInvoked(t *testing.T) {
	var hookedErr error
	stage := &stubStage{name: "persist", fn: func(context.Context, *model.WebhookContext) model.StageResult {
		return model.Abort(model.ErrWebhookNotFound)
	}}

	p := NewProcessor(stages(stage), newNullWebhookRepo(), time.Second, Hooks{
		OnError: func(err error, _ *model.ProcessingResult) { hookedErr = err },
	})
	p.Process(context.Background(), "paystack", nil, nil)

	require.Error(t, hookedErr)
	assert.Equal(t, model.ErrWebhookNotFound, hookedErr)
}
