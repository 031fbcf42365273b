package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/repository"
	"payhook/pkg/logger"
)

// =====================================================
// EVENT DISPATCHER
// =====================================================

// Handler consumes one dispatched event. Handlers must be safe for
// concurrent use; the dispatcher never serializes them.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload *model.DispatchPayload) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, payload *model.DispatchPayload) error
}

func NewHandlerFunc(name string, fn func(ctx context.Context, payload *model.DispatchPayload) error) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

func (h *HandlerFunc) Name() string { return h.name }

func (h *HandlerFunc) Handle(ctx context.Context, payload *model.DispatchPayload) error {
	return h.fn(ctx, payload)
}

// Binding subscribes a handler to specific event types, or to every
// event when Events is empty
type Binding struct {
	Handler Handler
	Events  []model.NormalizedEventType
}

// Result is the observed outcome of one handler invocation
type Result struct {
	HandlerName string
	Status      string
	DurationMs  int64
	Err         error
}

// Dispatcher fans events out to subscribed handlers. The registry is
// fixed at construction; handlers run concurrently and one failing
// never suppresses the others.
type Dispatcher struct {
	byEvent map[model.NormalizedEventType][]Handler
	global  []Handler

	dispatchRepo repository.DispatchRepoInterface
}

func NewDispatcher(dispatchRepo repository.DispatchRepoInterface, bindings ...Binding) *Dispatcher {
	d := &Dispatcher{
		byEvent:      make(map[model.NormalizedEventType][]Handler),
		dispatchRepo: dispatchRepo,
	}
	for _, binding := range bindings {
		if len(binding.Events) == 0 {
			d.global = append(d.global, binding.Handler)
			continue
		}
		for _, event := range binding.Events {
			d.byEvent[event] = append(d.byEvent[event], binding.Handler)
		}
	}
	return d
}

// HandlersFor returns the handlers subscribed to an event type
func (d *Dispatcher) HandlersFor(eventType model.NormalizedEventType) []Handler {
	handlers := make([]Handler, 0, len(d.global)+len(d.byEvent[eventType]))
	handlers = append(handlers, d.global...)
	handlers = append(handlers, d.byEvent[eventType]...)
	return handlers
}

// Dispatch fans the payload out to every subscribed handler and
// records one dispatch log row per invocation. Returns the per-handler
// results; the error slot is nil because handler failures are data,
// not dispatch failures.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *model.DispatchPayload, retryCount int, isReplay bool) []Result {
	handlers := d.HandlersFor(payload.EventType)
	if len(handlers) == 0 {
		return nil
	}

	results := make([]Result, len(handlers))
	var wg sync.WaitGroup
	for i, handler := range handlers {
		wg.Add(1)
		go func(i int, handler Handler) {
			defer wg.Done()
			results[i] = d.invoke(ctx, handler, payload, retryCount, isReplay)
		}(i, handler)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, handler Handler, payload *model.DispatchPayload, retryCount int, isReplay bool) Result {
	started := time.Now()

	logRow := &model.DispatchLog{
		ID:            uuid.New(),
		WebhookLogID:  &payload.WebhookLogID,
		TransactionID: payload.TransactionID,
		EventType:     string(payload.EventType),
		HandlerName:   handler.Name(),
		Status:        model.DispatchStatusPending,
		AttemptedAt:   started.UTC(),
		RetryCount:    retryCount,
		IsReplay:      isReplay,
	}
	if d.dispatchRepo != nil {
		if err := d.dispatchRepo.Create(ctx, logRow); err != nil {
			logger.ErrorFields("failed to record dispatch attempt", err, map[string]interface{}{
				"handler":    handler.Name(),
				"event_type": payload.EventType,
			})
		}
	}

	err := d.safeHandle(ctx, handler, payload)
	durationMs := time.Since(started).Milliseconds()

	result := Result{
		HandlerName: handler.Name(),
		Status:      model.DispatchStatusSuccess,
		DurationMs:  durationMs,
		Err:         err,
	}
	var errMsg *string
	if err != nil {
		result.Status = model.DispatchStatusFailed
		msg := err.Error()
		errMsg = &msg
		logger.ErrorFields("dispatch handler failed", err, map[string]interface{}{
			"handler":    handler.Name(),
			"event_type": payload.EventType,
		})
	}

	if d.dispatchRepo != nil {
		if err := d.dispatchRepo.Complete(ctx, logRow.ID, result.Status, errMsg, durationMs); err != nil {
			logger.ErrorFields("failed to finalize dispatch log", err, map[string]interface{}{
				"handler": handler.Name(),
			})
		}
	}
	return result
}

// safeHandle contains handler panics so one bad subscriber cannot
// take the pipeline down
func (d *Dispatcher) safeHandle(ctx context.Context, handler Handler, payload *model.DispatchPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", handler.Name(), r)
		}
	}()
	return handler.Handle(ctx, payload)
}
