package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/pipeline"
	"payhook/internal/domains/webhook/repository"
	"payhook/pkg/logger"
)

// =====================================================
// WEBHOOK PROCESSOR
// =====================================================

// Hooks are optional observation points. They run synchronously
// after the claim is finalized; a nil hook is skipped.
type Hooks struct {
	OnFate  func(result *model.ProcessingResult)
	OnError func(err error, result *model.ProcessingResult)
}

// Processor drives one claim through the pipeline. Every inbound
// claim ends with exactly one fate; the caller acknowledges the
// provider regardless, carrying the fate in the response body.
type Processor struct {
	stages      []pipeline.Stage
	webhookRepo repository.WebhookRepoInterface
	timeout     time.Duration
	hooks       Hooks

	rethrowPanics bool
}

func NewProcessor(stages []pipeline.Stage, webhookRepo repository.WebhookRepoInterface, timeout time.Duration, hooks Hooks) *Processor {
	if timeout <= 0 {
		timeout = model.DefaultTimeoutMs * time.Millisecond
	}
	return &Processor{
		stages:      stages,
		webhookRepo: webhookRepo,
		timeout:     timeout,
		hooks:       hooks,
	}
}

// RethrowPanics makes Process propagate a stage panic to the caller
// instead of containing it in the result. Off by default; the HTTP
// surface relies on containment to keep the always-200 contract.
func (p *Processor) RethrowPanics() {
	p.rethrowPanics = true
}

// Process runs the pipeline for one raw delivery
func (p *Processor) Process(ctx context.Context, provider string, rawBody []byte, headers map[string]string) *model.ProcessingResult {
	started := time.Now()

	wc := &model.WebhookContext{
		ProcessingID: uuid.New(),
		Provider:     provider,
		RawBody:      rawBody,
		Headers:      lowercaseHeaders(headers),
		ReceivedAt:   started.UTC(),
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	metrics := model.ProcessingMetrics{StageDurationsMs: map[string]int64{}}

	// The goroutine owns wc and metrics until it sends on done.
	// Nothing here may touch either before that receive.
	done := make(chan stageOutcome, 1)
	go func() {
		var out stageOutcome
		defer func() {
			if r := recover(); r != nil {
				out.panicVal = r
			}
			done <- out
		}()
		out.err = p.runStages(runCtx, wc, &metrics)
	}()

	var pipelineErr error
	select {
	case out := <-done:
		if out.panicVal != nil {
			if p.rethrowPanics {
				panic(out.panicVal)
			}
			// Internal error; the claim keeps whatever fate it earned
			pipelineErr = fmt.Errorf("pipeline panic: %v", out.panicVal)
			logger.ErrorFields("pipeline stage panicked", pipelineErr, map[string]interface{}{
				"provider":      provider,
				"processing_id": wc.ProcessingID,
			})
		} else {
			pipelineErr = out.err
		}
	case <-runCtx.Done():
		logger.ErrorFields("webhook pipeline timed out", model.ErrPipelineTimeout, map[string]interface{}{
			"provider":      provider,
			"processing_id": wc.ProcessingID,
		})
		// The abandoned goroutine still mutates wc and metrics, so the
		// answer is built from values fixed before it started. The
		// claim row is stamped once the goroutine finally returns.
		go p.settleAbandoned(done, wc, started)

		result := &model.ProcessingResult{
			Success:          false,
			ProcessingStatus: model.FateParseError,
			Error:            model.ErrPipelineTimeout.Error(),
			Metrics: model.ProcessingMetrics{
				DurationMs:       time.Since(started).Milliseconds(),
				StageDurationsMs: map[string]int64{},
			},
		}
		if p.hooks.OnError != nil {
			p.hooks.OnError(model.ErrPipelineTimeout, result)
		}
		if p.hooks.OnFate != nil {
			p.hooks.OnFate(result)
		}
		return result
	}

	return p.finalize(wc, &metrics, started, pipelineErr)
}

type stageOutcome struct {
	err      error
	panicVal interface{}
}

// settleAbandoned waits out a timed-out pipeline goroutine and then
// stamps the timeout fate onto whatever claim row it left behind.
// Ownership of wc returns here only after the receive.
func (p *Processor) settleAbandoned(done <-chan stageOutcome, wc *model.WebhookContext, started time.Time) {
	<-done

	wc.SetFate(model.FateParseError, model.ErrPipelineTimeout.Error())
	if wc.WebhookLog == nil {
		return
	}

	errMsg := model.ErrPipelineTimeout.Error()
	durationMs := time.Since(started).Milliseconds()
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.webhookRepo.UpdateOutcome(updateCtx, wc.WebhookLog.ID, model.FateParseError, &errMsg, durationMs); err != nil {
		logger.Error("failed to stamp webhook outcome", err)
	}
}

func (p *Processor) runStages(ctx context.Context, wc *model.WebhookContext, metrics *model.ProcessingMetrics) error {
	for _, stage := range p.stages {
		stageStart := time.Now()
		result := stage.Execute(ctx, wc)
		metrics.StageDurationsMs[stage.Name()] = time.Since(stageStart).Milliseconds()

		if result.Err != nil {
			logger.ErrorFields("pipeline stage failed", result.Err, map[string]interface{}{
				"stage":         stage.Name(),
				"provider":      wc.Provider,
				"processing_id": wc.ProcessingID,
				"fatal":         !result.Continue,
			})
		}
		if !result.Continue {
			if !result.Success && result.Err != nil {
				return result.Err
			}
			return nil
		}
	}
	return nil
}

// finalize stamps the fate onto the persisted claim and assembles
// the result
func (p *Processor) finalize(wc *model.WebhookContext, metrics *model.ProcessingMetrics, started time.Time, pipelineErr error) *model.ProcessingResult {
	durationMs := time.Since(started).Milliseconds()
	fate := wc.Fate()

	metrics.DurationMs = durationMs
	metrics.SignatureVerified = wc.SignatureValid
	metrics.Normalized = wc.Normalized != nil
	metrics.Persisted = wc.WebhookLog != nil
	metrics.TransitionApplied = wc.TransitionApplied
	metrics.Dispatched = wc.Dispatched

	result := &model.ProcessingResult{
		Success:          pipelineErr == nil && (fate == model.FateProcessed || fate == model.FateDuplicate),
		ProcessingStatus: fate,
		Metrics:          *metrics,
	}
	if wc.ErrorMessage != "" {
		result.Error = wc.ErrorMessage
	} else if pipelineErr != nil {
		result.Error = pipelineErr.Error()
	}

	if wc.WebhookLog != nil {
		logID := wc.WebhookLog.ID
		result.WebhookLogID = &logID
		result.TransactionID = wc.WebhookLog.TransactionID

		var errMsg *string
		if result.Error != "" {
			errMsg = &result.Error
		}
		// Best effort; the claim row already exists with its
		// at-persist-time fate
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.webhookRepo.UpdateOutcome(updateCtx, logID, fate, errMsg, durationMs); err != nil {
			logger.Error("failed to stamp webhook outcome", err)
		}
	}

	logger.Info("webhook claim settled", map[string]interface{}{
		"provider":      wc.Provider,
		"processing_id": wc.ProcessingID,
		"fate":          fate,
		"duration_ms":   durationMs,
	})

	if pipelineErr != nil && p.hooks.OnError != nil {
		p.hooks.OnError(pipelineErr, result)
	}
	if p.hooks.OnFate != nil {
		p.hooks.OnFate(result)
	}
	return result
}

// lowercaseHeaders normalizes header names once so adapters can do
// exact-match lookups
func lowercaseHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[strings.ToLower(key)] = value
	}
	return out
}
