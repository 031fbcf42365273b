package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payhook/internal/domains/webhook/model"
)

// recordingRepo captures dispatch log writes in memory
type recordingRepo struct {
	mu        sync.Mutex
	created   []*model.DispatchLog
	completed map[uuid.UUID]string
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{completed: map[uuid.UUID]string{}}
}

func (r *recordingRepo) Create(_ context.Context, log *model.DispatchLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, log)
	return nil
}

func (r *recordingRepo) Complete(_ context.Context, id uuid.UUID, status string, _ *string, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[id] = status
	return nil
}

func (r *recordingRepo) ListByWebhookLogID(context.Context, uuid.UUID) ([]*model.DispatchLog, error) {
	return nil, nil
}

func payloadFor(eventType model.NormalizedEventType) *model.DispatchPayload {
	return &model.DispatchPayload{
		EventType:    eventType,
		WebhookLogID: uuid.New(),
	}
}

func TestDispatchRoutesByEventType(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	count := func(name string) *HandlerFunc {
		return NewHandlerFunc(name, func(context.Context, *model.DispatchPayload) error {
			mu.Lock()
			defer mu.Unlock()
			seen[name]++
			return nil
		})
	}

	d := NewDispatcher(newRecordingRepo(),
		Binding{Handler: count("payments"), Events: []model.NormalizedEventType{model.EventPaymentSuccessful, model.EventPaymentFailed}},
		Binding{Handler: count("refunds"), Events: []model.NormalizedEventType{model.EventRefundSuccessful}},
		Binding{Handler: count("audit-all")},
	)

	results := d.Dispatch(context.Background(), payloadFor(model.EventPaymentSuccessful), 0, false)
	require.Len(t, results, 2)

	assert.Equal(t, 1, seen["payments"])
	assert.Equal(t, 1, seen["audit-all"])
	assert.Equal(t, 0, seen["refunds"])
}

func TestDispatchIsolatesFailures(t *testing.T) {
	var delivered bool
	d := NewDispatcher(newRecordingRepo(),
		Binding{Handler: NewHandlerFunc("broken", func(context.Context, *model.DispatchPayload) error {
			return errors.New("downstream unavailable")
		})},
		Binding{Handler: NewHandlerFunc("healthy", func(context.Context, *model.DispatchPayload) error {
			delivered = true
			return nil
		})},
	)

	results := d.Dispatch(context.Background(), payloadFor(model.EventPaymentSuccessful), 0, false)
	require.Len(t, results, 2)
	assert.True(t, delivered)

	statuses := map[string]string{}
	for _, r := range results {
		statuses[r.HandlerName] = r.Status
	}
	assert.Equal(t, model.DispatchStatusFailed, statuses["broken"])
	assert.Equal(t, model.DispatchStatusSuccess, statuses["healthy"])
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := NewDispatcher(newRecordingRepo(),
		Binding{Handler: NewHandlerFunc("panicky", func(context.Context, *model.DispatchPayload) error {
			panic("boom")
		})},
	)

	results := d.Dispatch(context.Background(), payloadFor(model.EventChargeDisputed), 0, false)
	require.Len(t, results, 1)
	assert.Equal(t, model.DispatchStatusFailed, results[0].Status)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "panicked")
}

func TestDispatchRecordsLogs(t *testing.T) {
	repo := newRecordingRepo()
	d := NewDispatcher(repo,
		Binding{Handler: NewHandlerFunc("ok", func(context.Context, *model.DispatchPayload) error { return nil })},
	)

	payload := payloadFor(model.EventRefundSuccessful)
	d.Dispatch(context.Background(), payload, 3, true)

	require.Len(t, repo.created, 1)
	row := repo.created[0]
	assert.Equal(t, "ok", row.HandlerName)
	assert.Equal(t, 3, row.RetryCount)
	assert.True(t, row.IsReplay)
	assert.Equal(t, model.DispatchStatusSuccess, repo.completed[row.ID])
}

func TestDispatchNoSubscribers(t *testing.T) {
	d := NewDispatcher(newRecordingRepo())
	assert.Nil(t, d.Dispatch(context.Background(), payloadFor(model.EventPaymentAbandoned), 0, false))
}
