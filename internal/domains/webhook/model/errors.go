package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrNoAdapter        = errors.New("no adapter registered for provider")
	ErrNoSecrets        = errors.New("no webhook secrets configured for provider")
	ErrMissingSignature = errors.New("signature header missing")
	ErrWebhookNotFound  = errors.New("webhook log not found")
	ErrPipelineTimeout  = errors.New("pipeline timeout")
)

// =====================================================
// ERROR KINDS
// =====================================================
//
// Each kind maps to exactly one fate. The pipeline converts these
// into fates; they never cross the processor boundary.

// ParseError: the raw bytes are not valid for the declared format
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s payload: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NormalizationError: unknown event kind or missing required fields
type NormalizationError struct {
	Provider  string
	EventType string
	Reason    string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize %s event %q: %s", e.Provider, e.EventType, e.Reason)
}

// StorageError wraps a backend failure so stages can decide whether
// it is fatal (persist stage) or soft (everything after)
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
