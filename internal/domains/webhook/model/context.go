package model

import (
	"time"

	"github.com/google/uuid"

	txmodel "payhook/internal/domains/transaction/model"
)

// =====================================================
// WEBHOOK CONTEXT
// =====================================================

// WebhookContext is the shared record threaded through the pipeline
// stages. Stages mutate it in order; it is never shared across
// requests.
type WebhookContext struct {
	ProcessingID uuid.UUID
	Provider     string

	// RawBody must stay byte-for-byte as received; signature
	// verification depends on it
	RawBody []byte

	// Header keys are lowercased by the processor before stage one
	Headers map[string]string

	ReceivedAt time.Time

	// Stage 1 output
	SignatureValid bool

	// Stage 2 output
	Payload        map[string]interface{}
	Normalized     *NormalizedEvent
	IdempotencyKey string
	ProviderRef    string
	ApplicationRef string
	EventType      string

	// Stage 3+ output
	WebhookLog  *WebhookLog
	Transaction *txmodel.Transaction // snapshot; re-read under lock before updates

	// Flags for metrics
	TransitionApplied bool
	Dispatched        bool

	// Current fate; empty until a stage decides
	fate         ProcessingStatus
	ErrorMessage string

	// Test-only escape hatch
	SkipSignatureVerification bool

	Metadata map[string]interface{}
}

// SetFate records the claim's fate. Later stages may refine it
// (e.g. PROCESSED -> DUPLICATE) but never clear it.
func (c *WebhookContext) SetFate(fate ProcessingStatus, errorMessage string) {
	c.fate = fate
	if errorMessage != "" {
		c.ErrorMessage = errorMessage
	}
}

// Fate returns the current fate, defaulting to PROCESSED when no
// stage has objected
func (c *WebhookContext) Fate() ProcessingStatus {
	if c.fate == "" {
		return FateProcessed
	}
	return c.fate
}

// HasFate reports whether any stage has set a fate explicitly
func (c *WebhookContext) HasFate() bool {
	return c.fate != ""
}

// =====================================================
// STAGE RESULT
// =====================================================

// StageResult is the tagged outcome of one stage. Errors inside the
// pipeline become fates; only catastrophic failures surface in Err
// with Continue=false.
type StageResult struct {
	Success  bool
	Continue bool
	Err      error
}

func Proceed() StageResult {
	return StageResult{Success: true, Continue: true}
}

func Stop() StageResult {
	return StageResult{Success: true, Continue: false}
}

// SoftFail records a non-fatal error and keeps the pipeline moving
func SoftFail(err error) StageResult {
	return StageResult{Success: false, Continue: true, Err: err}
}

// Abort terminates the pipeline; the context's fate stands
func Abort(err error) StageResult {
	return StageResult{Success: false, Continue: false, Err: err}
}

// =====================================================
// PROCESSING RESULT & METRICS
// =====================================================

// ProcessingMetrics accumulates per-stage timings and the progress
// flag set for one claim
type ProcessingMetrics struct {
	DurationMs       int64            `json:"duration_ms"`
	StageDurationsMs map[string]int64 `json:"stage_durations_ms"`

	SignatureVerified bool `json:"signature_verified"`
	Normalized        bool `json:"normalized"`
	Persisted         bool `json:"persisted"`
	TransitionApplied bool `json:"transition_applied"`
	Dispatched        bool `json:"dispatched"`
}

// ProcessingResult is what the processor returns to the HTTP layer.
// It is always populated with a fate; the HTTP layer always answers
// 200 OK and carries the fate in the response body.
type ProcessingResult struct {
	Success          bool              `json:"success"`
	ProcessingStatus ProcessingStatus  `json:"claim_fate"`
	WebhookLogID     *uuid.UUID        `json:"webhook_log_id,omitempty"`
	TransactionID    *uuid.UUID        `json:"transaction_id,omitempty"`
	Error            string            `json:"error,omitempty"`
	Metrics          ProcessingMetrics `json:"metrics"`
}

// =====================================================
// DISPATCH PAYLOAD
// =====================================================

// DispatchPayload is handed to every registered handler (or written
// to the outbox) after a claim survives the pipeline
type DispatchPayload struct {
	EventType     NormalizedEventType    `json:"event_type"`
	Transaction   *txmodel.Transaction   `json:"transaction,omitempty"`
	WebhookLogID  uuid.UUID              `json:"webhook_log_id"`
	TransactionID *uuid.UUID             `json:"transaction_id,omitempty"`
	Normalized    *NormalizedEvent       `json:"normalized"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}
