package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/model"
)

const (
	ProviderName    = "paystack"
	signatureHeader = "x-paystack-signature"
)

// Adapter handles Paystack webhooks. Signature is HMAC-SHA512 of the
// raw body, hex encoded, keyed with the account secret.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string {
	return ProviderName
}

func (a *Adapter) SupportedEvents() []string {
	return []string{
		"charge.success",
		"charge.failed",
		"charge.abandoned",
		"refund.processed",
		"refund.pending",
		"refund.failed",
		"charge.dispute.create",
		"charge.dispute.resolve",
	}
}

func (a *Adapter) VerifySignature(rawBody []byte, headers map[string]string, secrets []string) bool {
	signature := headers[signatureHeader]
	if signature == "" {
		return false
	}
	for _, secret := range secrets {
		mac := hmac.New(sha512.New, []byte(secret))
		mac.Write(rawBody)
		expected := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

func (a *Adapter) ParsePayload(rawBody []byte) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, &model.ParseError{Provider: ProviderName, Err: err}
	}
	return payload, nil
}

func (a *Adapter) ExtractEventType(payload map[string]interface{}) string {
	return adapter.GetString(payload, "event")
}

func (a *Adapter) ExtractIdempotencyKey(payload map[string]interface{}) string {
	data := adapter.GetMap(payload, "data")
	id := adapter.NumberKey(data, "id")
	if id == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", a.ExtractEventType(payload), id)
}

func (a *Adapter) ExtractReferences(payload map[string]interface{}) (string, string) {
	data := adapter.GetMap(payload, "data")
	providerRef := adapter.GetString(data, "reference")
	applicationRef := adapter.GetString(adapter.GetMap(data, "metadata"), "application_ref")
	return providerRef, applicationRef
}

func (a *Adapter) IsSuccessEvent(payload map[string]interface{}) bool {
	return a.ExtractEventType(payload) == "charge.success"
}

func (a *Adapter) IsFailureEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "charge.failed", "charge.abandoned":
		return true
	}
	return false
}

func (a *Adapter) IsRefundEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "refund.processed", "refund.pending", "refund.failed":
		return true
	}
	return false
}

func (a *Adapter) IsDisputeEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "charge.dispute.create", "charge.dispute.resolve":
		return true
	}
	return false
}

func (a *Adapter) Normalize(payload map[string]interface{}) (*model.NormalizedEvent, error) {
	eventType := a.ExtractEventType(payload)
	data := adapter.GetMap(payload, "data")
	if data == nil {
		return nil, &model.NormalizationError{
			Provider:  ProviderName,
			EventType: eventType,
			Reason:    "missing data object",
		}
	}

	kind, outcome, err := mapEventType(eventType, data)
	if err != nil {
		return nil, err
	}

	providerRef, applicationRef := a.ExtractReferences(payload)

	event := &model.NormalizedEvent{
		EventType:       kind,
		ProviderEventID: a.ExtractIdempotencyKey(payload),
		ProviderRef:     providerRef,
		ApplicationRef:  applicationRef,
		// Paystack amounts are already in minor units (kobo)
		Amount:           adapter.GetInt64(data, "amount"),
		Currency:         adapter.GetString(data, "currency"),
		CustomerEmail:    adapter.GetString(adapter.GetMap(data, "customer"), "email"),
		DisputeOutcome:   outcome,
		ProviderMetadata: adapter.GetMap(data, "metadata"),
	}
	if ts := adapter.ParseTime(adapter.GetString(data, "paid_at")); ts != nil {
		event.ProviderTimestamp = ts
	} else if ts := adapter.ParseTime(adapter.GetString(data, "created_at")); ts != nil {
		event.ProviderTimestamp = ts
	}
	return event, nil
}

func mapEventType(eventType string, data map[string]interface{}) (model.NormalizedEventType, string, error) {
	switch eventType {
	case "charge.success":
		return model.EventPaymentSuccessful, "", nil
	case "charge.failed":
		return model.EventPaymentFailed, "", nil
	case "charge.abandoned":
		return model.EventPaymentAbandoned, "", nil
	case "refund.processed":
		return model.EventRefundSuccessful, "", nil
	case "refund.pending":
		return model.EventRefundPending, "", nil
	case "refund.failed":
		return model.EventRefundFailed, "", nil
	case "charge.dispute.create":
		return model.EventChargeDisputed, "", nil
	case "charge.dispute.resolve":
		outcome := ""
		switch adapter.GetString(data, "resolution") {
		case "merchant-accepted", "declined":
			outcome = model.DisputeOutcomeLost
		case "resolved", "won":
			outcome = model.DisputeOutcomeWon
		}
		return model.EventDisputeResolved, outcome, nil
	}
	return "", "", &model.NormalizationError{
		Provider:  ProviderName,
		EventType: eventType,
		Reason:    "unsupported event",
	}
}
