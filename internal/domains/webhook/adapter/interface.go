package adapter

import (
	"payhook/internal/domains/webhook/model"
)

// =====================================================
// PROVIDER ADAPTER PORT
// =====================================================

// Adapter is the per-provider capability set the pipeline depends
// on. One implementation per provider; all implementations are
// immutable after construction.
type Adapter interface {
	// Name returns the provider identifier ("paystack", "stripe", ...)
	Name() string

	// SupportedEvents lists the raw provider event names this
	// adapter can normalize
	SupportedEvents() []string

	// VerifySignature checks the webhook signature against the raw
	// body. Secrets are tried in order to support rotation; the
	// comparison for the accepted secret is constant-time. Returns
	// false when the signature header is missing.
	VerifySignature(rawBody []byte, headers map[string]string, secrets []string) bool

	// ParsePayload decodes the raw bytes. Fails with *model.ParseError.
	ParsePayload(rawBody []byte) (map[string]interface{}, error)

	// Normalize translates the parsed payload into the
	// provider-independent event. Fails with *model.NormalizationError
	// when the event kind is unknown.
	Normalize(payload map[string]interface{}) (*model.NormalizedEvent, error)

	// ExtractIdempotencyKey returns the provider's unique event id,
	// or "" when the provider supplies none (the pipeline then
	// synthesizes one from the raw body)
	ExtractIdempotencyKey(payload map[string]interface{}) string

	// ExtractReferences returns the provider reference and, when the
	// payload carries one, the merchant's application reference
	ExtractReferences(payload map[string]interface{}) (providerRef, applicationRef string)

	// ExtractEventType returns the raw provider event name
	ExtractEventType(payload map[string]interface{}) string

	// Event classifiers
	IsSuccessEvent(payload map[string]interface{}) bool
	IsFailureEvent(payload map[string]interface{}) bool
	IsRefundEvent(payload map[string]interface{}) bool
	IsDisputeEvent(payload map[string]interface{}) bool
}
