package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/model"
)

const (
	ProviderName    = "stripe"
	signatureHeader = "stripe-signature"

	// Signatures older or newer than this are rejected to limit
	// replay windows
	defaultTolerance = 5 * time.Minute
)

// Adapter handles Stripe webhooks. The signature header carries a
// timestamp and one or more v1 signatures: HMAC-SHA256 over
// "<timestamp>.<raw body>".
type Adapter struct {
	tolerance time.Duration
	now       func() time.Time
}

func New() *Adapter {
	return &Adapter{tolerance: defaultTolerance, now: time.Now}
}

func (a *Adapter) Name() string {
	return ProviderName
}

func (a *Adapter) SupportedEvents() []string {
	return []string{
		"payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.canceled",
		"charge.refunded",
		"refund.updated",
		"charge.dispute.created",
		"charge.dispute.closed",
	}
}

func (a *Adapter) VerifySignature(rawBody []byte, headers map[string]string, secrets []string) bool {
	header := headers[signatureHeader]
	if header == "" {
		return false
	}
	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == 0 || len(signatures) == 0 {
		return false
	}

	sent := time.Unix(timestamp, 0)
	if drift := a.now().Sub(sent); drift > a.tolerance || drift < -a.tolerance {
		return false
	}

	signedPayload := strconv.FormatInt(timestamp, 10) + "." + string(rawBody)
	for _, secret := range secrets {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(signedPayload))
		expected := hex.EncodeToString(mac.Sum(nil))
		for _, sig := range signatures {
			if hmac.Equal([]byte(expected), []byte(sig)) {
				return true
			}
		}
	}
	return false
}

// parseSignatureHeader splits "t=1699999999,v1=abc,v1=def,v0=..."
// into the timestamp and the v1 signatures
func parseSignatureHeader(header string) (int64, []string) {
	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp, _ = strconv.ParseInt(value, 10, 64)
		case "v1":
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}

func (a *Adapter) ParsePayload(rawBody []byte) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, &model.ParseError{Provider: ProviderName, Err: err}
	}
	return payload, nil
}

func (a *Adapter) ExtractEventType(payload map[string]interface{}) string {
	return adapter.GetString(payload, "type")
}

func (a *Adapter) ExtractIdempotencyKey(payload map[string]interface{}) string {
	// Stripe event ids ("evt_...") are unique per delivery attempt set
	return adapter.GetString(payload, "id")
}

func (a *Adapter) ExtractReferences(payload map[string]interface{}) (string, string) {
	object := adapter.GetMap(payload, "data", "object")
	providerRef := adapter.GetString(object, "payment_intent")
	if providerRef == "" {
		providerRef = adapter.GetString(object, "id")
	}
	applicationRef := adapter.GetString(adapter.GetMap(object, "metadata"), "application_ref")
	return providerRef, applicationRef
}

func (a *Adapter) IsSuccessEvent(payload map[string]interface{}) bool {
	return a.ExtractEventType(payload) == "payment_intent.succeeded"
}

func (a *Adapter) IsFailureEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return true
	}
	return false
}

func (a *Adapter) IsRefundEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "charge.refunded", "refund.updated":
		return true
	}
	return false
}

func (a *Adapter) IsDisputeEvent(payload map[string]interface{}) bool {
	switch a.ExtractEventType(payload) {
	case "charge.dispute.created", "charge.dispute.closed":
		return true
	}
	return false
}

func (a *Adapter) Normalize(payload map[string]interface{}) (*model.NormalizedEvent, error) {
	eventType := a.ExtractEventType(payload)
	object := adapter.GetMap(payload, "data", "object")
	if object == nil {
		return nil, &model.NormalizationError{
			Provider:  ProviderName,
			EventType: eventType,
			Reason:    "missing data.object",
		}
	}

	kind, outcome, err := mapEventType(eventType, object)
	if err != nil {
		return nil, err
	}

	providerRef, applicationRef := a.ExtractReferences(payload)

	amount := adapter.GetInt64(object, "amount_received")
	if amount == 0 {
		amount = adapter.GetInt64(object, "amount")
	}

	event := &model.NormalizedEvent{
		EventType:       kind,
		ProviderEventID: a.ExtractIdempotencyKey(payload),
		ProviderRef:     providerRef,
		ApplicationRef:  applicationRef,
		// Stripe amounts are in minor units; currency arrives lowercase
		Amount:           amount,
		Currency:         strings.ToUpper(adapter.GetString(object, "currency")),
		CustomerEmail:    adapter.GetString(object, "receipt_email"),
		DisputeOutcome:   outcome,
		ProviderMetadata: adapter.GetMap(object, "metadata"),
	}
	if created := adapter.GetInt64(payload, "created"); created > 0 {
		ts := time.Unix(created, 0).UTC()
		event.ProviderTimestamp = &ts
	}
	return event, nil
}

func mapEventType(eventType string, object map[string]interface{}) (model.NormalizedEventType, string, error) {
	switch eventType {
	case "payment_intent.succeeded":
		return model.EventPaymentSuccessful, "", nil
	case "payment_intent.payment_failed":
		return model.EventPaymentFailed, "", nil
	case "payment_intent.canceled":
		return model.EventPaymentAbandoned, "", nil
	case "charge.refunded":
		return model.EventRefundSuccessful, "", nil
	case "refund.updated":
		switch adapter.GetString(object, "status") {
		case "succeeded":
			return model.EventRefundSuccessful, "", nil
		case "failed", "canceled":
			return model.EventRefundFailed, "", nil
		}
		return model.EventRefundPending, "", nil
	case "charge.dispute.created":
		return model.EventChargeDisputed, "", nil
	case "charge.dispute.closed":
		outcome := ""
		switch adapter.GetString(object, "status") {
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
