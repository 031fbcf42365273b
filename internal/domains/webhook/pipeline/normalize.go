package pipeline

import (
	"context"
	"errors"

	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/model"
)

// =====================================================
// STAGE 2: PARSE & NORMALIZE
// =====================================================

// normalizeStage parses the raw bytes and translates them into the
// provider-independent event. Unparseable or untranslatable payloads
// terminate the pipeline here; claims that already failed
// verification are passed through so persist can still record them.
type normalizeStage struct {
	registry *adapter.Registry
}

func NewNormalizeStage(registry *adapter.Registry) Stage {
	return &normalizeStage{registry: registry}
}

func (s *normalizeStage) Name() string { return "normalize" }

func (s *normalizeStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	if !wc.SignatureValid {
		return model.Proceed()
	}

	providerAdapter, ok := s.registry.Adapter(wc.Provider)
	if !ok {
		wc.SetFate(model.FateParseError, model.ErrNoAdapter.Error())
		return model.Stop()
	}

	payload, err := providerAdapter.ParsePayload(wc.RawBody)
	if err != nil {
		wc.SetFate(model.FateParseError, err.Error())
		return model.Stop()
	}
	wc.Payload = payload
	wc.EventType = providerAdapter.ExtractEventType(payload)

	normalized, err := providerAdapter.Normalize(payload)
	if err != nil {
		var normErr *model.NormalizationError
		if errors.As(err, &normErr) {
			wc.SetFate(model.FateNormalizationFailed, err.Error())
		} else {
			wc.SetFate(model.FateParseError, err.Error())
		}
		return model.Stop()
	}
	wc.Normalized = normalized
	wc.ProviderRef = normalized.ProviderRef
	wc.ApplicationRef = normalized.ApplicationRef

	wc.IdempotencyKey = normalized.ProviderEventID
	if wc.IdempotencyKey == "" {
		wc.IdempotencyKey = adapter.SynthesizeIdempotencyKey(wc.RawBody, wc.Provider, wc.ReceivedAt)
		normalized.ProviderEventID = wc.IdempotencyKey
	}

	return model.Proceed()
}
