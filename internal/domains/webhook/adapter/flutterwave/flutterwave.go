package flutterwave

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/model"
)

const (
	ProviderName    = "flutterwave"
	signatureHeader = "verif-hash"
)

// Adapter handles Flutterwave webhooks. The verif-hash header carries
// the SHA-256 of the configured secret, not a body signature, so the
// check is a constant-time compare against each precomputable digest.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string {
	return ProviderName
}

func (a *Adapter) SupportedEvents() []string {
	return []string{
		"charge.completed",
		"refund.completed",
		"charge.dispute",
		"charge.dispute.resolved",
	}
}

func (a *Adapter) VerifySignature(rawBody []byte, headers map[string]string, secrets []string) bool {
	received := headers[signatureHeader]
	if received == "" {
		return false
	}
	for _, secret := range secrets {
		sum := sha256.Sum256([]byte(secret))
		expected := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1 {
			return true
		}
		// Some accounts are configured with the raw secret as the hash
		if subtle.ConstantTimeCompare([]byte(secret), []byte(received)) == 1 {
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
	// tx_ref is the merchant-supplied reference, flw_ref is Flutterwave's
	return adapter.GetString(data, "flw_ref"), adapter.GetString(data, "tx_ref")
}

func (a *Adapter) IsSuccessEvent(payload map[string]interface{}) bool {
	if a.ExtractEventType(payload) != "charge.completed" {
		return false
	}
	return adapter.GetString(adapter.GetMap(payload, "data"), "status") == "successful"
}

func (a *Adapter) IsFailureEvent(payload map[string]interface{}) bool {
	if a.ExtractEventType(payload) != "charge.completed" {
		return false
	}
	switch adapter.GetString(adapter.GetMap(payload, "data"), "status") {
	case "failed", "abandoned":
		return true
	}
	return false
}

func (a *Adapter) IsRefundEvent(payload map[string]interface{}) bool {
	return a.ExtractEventType(payload) == "refund.completed"
}

func (a *Adapter) IsDisputeEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "charge.dispute", "charge.dispute.resolved":
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
		EventType:        kind,
		ProviderEventID:  a.ExtractIdempotencyKey(payload),
		ProviderRef:      providerRef,
		ApplicationRef:   applicationRef,
		Amount:           minorUnits(adapter.GetFloat(data, "amount")),
		Currency:         adapter.GetString(data, "currency"),
		CustomerEmail:    adapter.GetString(adapter.GetMap(data, "customer"), "email"),
		DisputeOutcome:   outcome,
		ProviderMetadata: adapter.GetMap(data, "meta"),
	}
	if ts := adapter.ParseTime(adapter.GetString(data, "created_at")); ts != nil {
		event.ProviderTimestamp = ts
	}
	return event, nil
}

// minorUnits converts Flutterwave's major-unit decimal amounts
// without float drift
func minorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).IntPart()
}

func mapEventType(eventType string, data map[string]interface{}) (model.NormalizedEventType, string, error) {
	status := adapter.GetString(data, "status")
	switch eventType {
	case "charge.completed":
		switch status {
		case "successful":
			return model.EventPaymentSuccessful, "", nil
		case "failed":
			return model.EventPaymentFailed, "", nil
		case "abandoned", "cancelled":
			return model.EventPaymentAbandoned, "", nil
		}
		return "", "", &model.NormalizationError{
			Provider:  ProviderName,
			EventType: eventType,
			Reason:    fmt.Sprintf("unknown charge status %q", status),
		}
	case "refund.completed":
		switch status {
		case "failed":
			return model.EventRefundFailed, "", nil
		case "pending":
			return model.EventRefundPending, "", nil
		}
		return model.EventRefundSuccessful, "", nil
	case "charge.dispute":
		return model.EventChargeDisputed, "", nil
	case "charge.dispute.resolved":
		outcome := ""
		switch adapter.GetString(data, "dispute_status") {
		case "won":
			outcome = model.DisputeOutcomeWon
		case "lost":
			outcome = model.DisputeOutcomeLost
		}
		return model.EventDisputeResolved, outcome, nil
	}
	return "", "", &model.NormalizationError{
		Provider:  ProviderName,
		EventType: eventType,
		Reason:    "unsupported event",
	}
}
