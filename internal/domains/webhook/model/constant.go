package model

// =====================================================
// PROCESSING STATUS (CLAIM FATES)
// =====================================================

// ProcessingStatus is the terminal classification of one webhook
// claim. Every claim that reaches the processor ends in exactly one.
type ProcessingStatus string

const (
	FateProcessed           ProcessingStatus = "PROCESSED"
	FateDuplicate           ProcessingStatus = "DUPLICATE"
	FateUnmatched           ProcessingStatus = "UNMATCHED"
	FateSignatureFailed     ProcessingStatus = "SIGNATURE_FAILED"
	FateNormalizationFailed ProcessingStatus = "NORMALIZATION_FAILED"
	FateTransitionRejected  ProcessingStatus = "TRANSITION_REJECTED"
	FateParseError          ProcessingStatus = "PARSE_ERROR"
)

var ValidFates = []ProcessingStatus{
	FateProcessed,
	FateDuplicate,
	FateUnmatched,
	FateSignatureFailed,
	FateNormalizationFailed,
	FateTransitionRejected,
	FateParseError,
}

// SkipsDispatch reports whether the dispatch stage must not fan the
// claim out
func (s ProcessingStatus) SkipsDispatch() bool {
	switch s {
	case FateDuplicate, FateSignatureFailed, FateNormalizationFailed, FateParseError:
		return true
	}
	return false
}

func (s ProcessingStatus) IsValid() bool {
	for _, v := range ValidFates {
		if s == v {
			return true
		}
	}
	return false
}

// =====================================================
// DISPATCH STATUS
// =====================================================

const (
	DispatchStatusPending   = "PENDING"
	DispatchStatusDelivered = "DELIVERED"
	DispatchStatusSuccess   = "SUCCESS"
	DispatchStatusFailed    = "FAILED"
	DispatchStatusSkipped   = "SKIPPED"
)

// =====================================================
// REDACTION
// =====================================================

// SensitiveHeaders are always dropped from the persisted header map,
// regardless of configured redact keys.
var SensitiveHeaders = []string{
	"authorization",
	"x-api-key",
	"x-secret-key",
	"x-auth-token",
}

const RedactedPlaceholder = "[REDACTED]"

// =====================================================
// DEFAULTS
// =====================================================

const (
	DefaultTimeoutMs = 30000

	// TTL for the redis duplicate fast-path claim
	DedupClaimTTLHours = 48
)
