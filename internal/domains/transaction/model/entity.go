package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// TRANSACTION ENTITY
// =====================================================

// Transaction is the authoritative payment fact. One row per logical
// payment, keyed by the merchant's application reference; the provider
// reference is linked once the provider first tells us about it.
type Transaction struct {
	ID uuid.UUID `json:"id" db:"id"`

	// References
	ApplicationRef string  `json:"application_ref" db:"application_ref"`
	Provider       string  `json:"provider" db:"provider"`
	ProviderRef    *string `json:"provider_ref,omitempty" db:"provider_ref"`

	// State
	Status             TransactionStatus  `json:"status" db:"status"`
	VerificationMethod VerificationMethod `json:"verification_method" db:"verification_method"`

	// Money (minor units)
	Amount   int64  `json:"amount" db:"amount"`
	Currency string `json:"currency" db:"currency"`

	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`

	// Timestamps
	ProviderCreatedAt *time.Time `json:"provider_created_at,omitempty" db:"provider_created_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`

	// Optimistic guard; bumped on every locked update
	Version int `json:"version" db:"version"`
}

// Money returns the transaction amount as a value object
func (t *Transaction) Money() Money {
	return Money{Amount: t.Amount, Currency: t.Currency}
}

// HasProviderRef reports whether the provider reference is linked
func (t *Transaction) HasProviderRef() bool {
	return t.ProviderRef != nil && *t.ProviderRef != ""
}

// CanUpgradeVerification reports whether moving to the given method
// keeps the confidence ordering non-decreasing
func (t *Transaction) CanUpgradeVerification(method VerificationMethod) bool {
	return method.ConfidenceRank() >= t.VerificationMethod.ConfidenceRank()
}

// =====================================================
// AUDIT LOG ENTITY
// =====================================================

// AuditLog is the append-only transition record. Every successful
// status change writes exactly one row in the same database
// transaction as the status update; rows are never mutated.
type AuditLog struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TransactionID uuid.UUID `json:"transaction_id" db:"transaction_id"`

	Action string `json:"action" db:"action"`

	// FromStatus is nil for creation entries
	FromStatus *TransactionStatus `json:"state_before,omitempty" db:"state_before"`
	ToStatus   TransactionStatus  `json:"state_after" db:"state_after"`

	TriggerType        TriggerType         `json:"trigger_type" db:"trigger_type"`
	WebhookLogID       *uuid.UUID          `json:"webhook_log_id,omitempty" db:"webhook_log_id"`
	VerificationMethod *VerificationMethod `json:"verification_method,omitempty" db:"verification_method"`

	Actor    string                 `json:"performed_by" db:"performed_by"`
	Reason   string                 `json:"reason" db:"reason"`
	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"performed_at" db:"performed_at"`
}
