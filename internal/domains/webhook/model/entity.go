package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// WEBHOOK LOG ENTITY
// =====================================================

// WebhookLog is the append-only record of one inbound claim.
// Created in the persist stage; only the fate, the transaction link
// and the duration are ever updated afterwards.
type WebhookLog struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Provider string    `json:"provider" db:"provider"`

	// Idempotency key; nil when the provider supplied none and
	// synthesis was disabled
	ProviderEventID *string `json:"provider_event_id,omitempty" db:"provider_event_id"`

	// Raw provider event name
	EventType *string `json:"event_type,omitempty" db:"event_type"`

	// Post-redaction request data
	RawPayload map[string]interface{} `json:"raw_payload,omitempty" db:"raw_payload"`
	Headers    map[string]interface{} `json:"headers,omitempty" db:"headers"`

	SignatureValid   bool             `json:"signature_valid" db:"signature_valid"`
	ProcessingStatus ProcessingStatus `json:"processing_status" db:"processing_status"`

	// Snapshot of the normalized event, for replay and debugging
	NormalizedEvent *NormalizedEvent `json:"normalized_event,omitempty" db:"normalized_event"`

	TransactionID *uuid.UUID `json:"transaction_id,omitempty" db:"transaction_id"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`

	ProcessingDurationMs *int64    `json:"processing_duration_ms,omitempty" db:"processing_duration_ms"`
	ReceivedAt           time.Time `json:"received_at" db:"received_at"`
}

// IsLinked reports whether the claim matched a transaction
func (w *WebhookLog) IsLinked() bool {
	return w.TransactionID != nil
}

// =====================================================
// DISPATCH LOG ENTITY
// =====================================================

// DispatchLog records one handler invocation for one claim.
// Handlers are observed independently; one failing never hides the
// others.
type DispatchLog struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	WebhookLogID  *uuid.UUID `json:"webhook_log_id,omitempty" db:"webhook_log_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty" db:"transaction_id"`

	EventType   string `json:"event_type" db:"event_type"`
	HandlerName string `json:"handler_name" db:"handler_name"`
	Status      string `json:"status" db:"status"`

	AttemptedAt time.Time  `json:"attempted_at" db:"attempted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs  *int64     `json:"duration_ms,omitempty" db:"duration_ms"`

	Error      *string `json:"error,omitempty" db:"error"`
	RetryCount int     `json:"retry_count" db:"retry_count"`
	IsReplay   bool    `json:"is_replay" db:"is_replay"`
}
