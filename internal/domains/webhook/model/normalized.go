package model

import (
	"time"

	txmodel "payhook/internal/domains/transaction/model"
)

// =====================================================
// NORMALIZED EVENT TAXONOMY
// =====================================================

// NormalizedEventType is the provider-independent event taxonomy.
// Adapters translate each provider's raw event names into this set.
type NormalizedEventType string

const (
	EventPaymentSuccessful NormalizedEventType = "PAYMENT_SUCCESSFUL"
	EventPaymentFailed     NormalizedEventType = "PAYMENT_FAILED"
	EventPaymentAbandoned  NormalizedEventType = "PAYMENT_ABANDONED"
	EventRefundSuccessful  NormalizedEventType = "REFUND_SUCCESSFUL"
	EventRefundFailed      NormalizedEventType = "REFUND_FAILED"
	EventRefundPending     NormalizedEventType = "REFUND_PENDING"
	EventChargeDisputed    NormalizedEventType = "CHARGE_DISPUTED"
	EventDisputeResolved   NormalizedEventType = "DISPUTE_RESOLVED"
)

// IsPaymentEvent reports whether the event describes the initial
// payment attempt (the only kind that may auto-create a transaction)
func (t NormalizedEventType) IsPaymentEvent() bool {
	switch t {
	case EventPaymentSuccessful, EventPaymentFailed, EventPaymentAbandoned:
		return true
	}
	return false
}

func (t NormalizedEventType) IsRefundEvent() bool {
	switch t {
	case EventRefundSuccessful, EventRefundFailed, EventRefundPending:
		return true
	}
	return false
}

func (t NormalizedEventType) IsDisputeEvent() bool {
	switch t {
	case EventChargeDisputed, EventDisputeResolved:
		return true
	}
	return false
}

// Dispute outcomes carried by DISPUTE_RESOLVED payloads
const (
	DisputeOutcomeWon  = "won"
	DisputeOutcomeLost = "lost"
)

// =====================================================
// NORMALIZED EVENT
// =====================================================

// NormalizedEvent is the provider-independent view of one webhook
// payload, produced by the adapter's normalize step. It is a pure
// function of the raw payload.
type NormalizedEvent struct {
	EventType       NormalizedEventType `json:"event_type"`
	ProviderEventID string              `json:"provider_event_id"`
	ProviderRef     string              `json:"provider_ref"`

	// Minor units
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	ApplicationRef    string     `json:"application_ref,omitempty"`
	ProviderTimestamp *time.Time `json:"provider_timestamp,omitempty"`
	CustomerEmail     string     `json:"customer_email,omitempty"`

	// Set for DISPUTE_RESOLVED when the payload carries the outcome
	DisputeOutcome string `json:"dispute_outcome,omitempty"`

	ProviderMetadata map[string]interface{} `json:"provider_metadata,omitempty"`
}

// TargetStatus maps the event to the transaction status it drives.
// The second return is false for events that never change status
// (failed or still-pending refunds).
func (e *NormalizedEvent) TargetStatus() (txmodel.TransactionStatus, bool) {
	switch e.EventType {
	case EventPaymentSuccessful:
		return txmodel.StatusSuccessful, true
	case EventPaymentFailed:
		return txmodel.StatusFailed, true
	case EventPaymentAbandoned:
		return txmodel.StatusAbandoned, true
	case EventRefundSuccessful:
		return txmodel.StatusRefunded, true
	case EventChargeDisputed:
		return txmodel.StatusDisputed, true
	case EventDisputeResolved:
		switch e.DisputeOutcome {
		case DisputeOutcomeWon:
			return txmodel.StatusResolvedWon, true
		case DisputeOutcomeLost:
			return txmodel.StatusResolvedLost, true
		}
		// No outcome in the payload means the dispute was cancelled
		return txmodel.StatusSuccessful, true
	}
	return "", false
}
