package pipeline

import (
	"context"

	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/model"
	"payhook/pkg/logger"
)

// =====================================================
// STAGE 1: SIGNATURE VERIFICATION
// =====================================================

// verifyStage authenticates the claim against the provider's
// configured secrets. A failed check is not the end of the pipeline:
// the claim still gets persisted with its fate for forensics, so this
// stage always proceeds. An unknown provider or an empty secret list
// counts as a failed check.
type verifyStage struct {
	registry  *adapter.Registry
	skipCheck bool
}

func NewVerifyStage(registry *adapter.Registry, skipCheck bool) Stage {
	return &verifyStage{registry: registry, skipCheck: skipCheck}
}

func (s *verifyStage) Name() string { return "verify" }

func (s *verifyStage) Execute(ctx context.Context, wc *model.WebhookContext) model.StageResult {
	if s.skipCheck || wc.SkipSignatureVerification {
		wc.SignatureValid = true
		return model.Proceed()
	}

	providerAdapter, ok := s.registry.Adapter(wc.Provider)
	if !ok {
		wc.SetFate(model.FateSignatureFailed, model.ErrNoAdapter.Error())
		return model.Proceed()
	}

	secrets := s.registry.Secrets(wc.Provider)
	if len(secrets) == 0 {
		logger.Warn("webhook received for provider without secrets", map[string]interface{}{
			"provider": wc.Provider,
		})
		wc.SetFate(model.FateSignatureFailed, model.ErrNoSecrets.Error())
		return model.Proceed()
	}

	wc.SignatureValid = providerAdapter.VerifySignature(wc.RawBody, wc.Headers, secrets)
	if !wc.SignatureValid {
		wc.SetFate(model.FateSignatureFailed, "signature verification failed")
	}
	return model.Proceed()
}
