package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// OUTBOX ENTRY
// =====================================================

// Entry status lifecycle: PENDING -> PROCESSED, or PENDING ->
// FAILED (retry with backoff) -> DEAD_LETTER once retries are
// exhausted. FAILED entries are fetched again once due.
const (
	StatusPending    = "PENDING"
	StatusProcessed  = "PROCESSED"
	StatusFailed     = "FAILED"
	StatusDeadLetter = "DEAD_LETTER"
)

// Aggregate types an entry can reference
const (
	AggregateTransaction = "transaction"
	AggregateWebhookLog  = "webhook_log"
)

const (
	DefaultMaxRetries  = 5
	DefaultBackoffBase = 30 * time.Second
)

// Entry is one queued dispatch, written in the same database
// transaction as the state change it announces. The drain job
// delivers it at-least-once.
type Entry struct {
	ID uuid.UUID `json:"id" db:"id"`

	// The domain row this event is about
	AggregateType string    `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   uuid.UUID `json:"aggregate_id" db:"aggregate_id"`

	EventType string `json:"event_type" db:"event_type"`

	// Serialized dispatch payload
	Payload []byte `json:"payload" db:"payload"`

	Status     string `json:"status" db:"status"`
	RetryCount int    `json:"retry_count" db:"retry_count"`
	MaxRetries int    `json:"max_retries" db:"max_retries"`

	NextAttemptAt time.Time  `json:"next_attempt_at" db:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    DefaultMaxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// BackoffDelay returns the wait before the next attempt: the base
// doubled per prior failure
func BackoffDelay(retryCount int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if retryCount < 0 {
		retryCount = 0
	}
	// Cap the shift so the delay stays sane even with a corrupted count
	if retryCount > 10 {
		retryCount = 10
	}
	return base * (1 << uint(retryCount))
}

// RecordFailure advances the retry state after a failed delivery.
// Returns true when the entry just went to the dead letter state.
func (e *Entry) RecordFailure(failure error, base time.Duration, now time.Time) bool {
	msg := failure.Error()
	e.LastError = &msg
	e.RetryCount++

	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusDeadLetter
		return true
	}
	e.Status = StatusFailed
	e.NextAttemptAt = now.Add(BackoffDelay(e.RetryCount, base))
	return false
}

// MarkProcessed finalizes a delivered entry
func (e *Entry) MarkProcessed(now time.Time) {
	e.Status = StatusProcessed
	e.ProcessedAt = &now
}
