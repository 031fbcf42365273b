package model

// =====================================================
// TRANSACTION STATUS
// =====================================================

type TransactionStatus string

const (
	StatusPending           TransactionStatus = "PENDING"
	StatusProcessing        TransactionStatus = "PROCESSING"
	StatusSuccessful        TransactionStatus = "SUCCESSFUL"
	StatusFailed            TransactionStatus = "FAILED"
	StatusAbandoned         TransactionStatus = "ABANDONED"
	StatusRefunded          TransactionStatus = "REFUNDED"
	StatusPartiallyRefunded TransactionStatus = "PARTIALLY_REFUNDED"
	StatusDisputed          TransactionStatus = "DISPUTED"
	StatusResolvedWon       TransactionStatus = "RESOLVED_WON"
	StatusResolvedLost      TransactionStatus = "RESOLVED_LOST"
)

var ValidStatuses = []TransactionStatus{
	StatusPending,
	StatusProcessing,
	StatusSuccessful,
	StatusFailed,
	StatusAbandoned,
	StatusRefunded,
	StatusPartiallyRefunded,
	StatusDisputed,
	StatusResolvedWon,
	StatusResolvedLost,
}

// IsTerminal reports whether the status admits no outgoing transitions
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusAbandoned, StatusRefunded, StatusResolvedWon, StatusResolvedLost:
		return true
	}
	return false
}

// IsValid reports whether the status is a known value
func (s TransactionStatus) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// =====================================================
// TRIGGER TYPE
// =====================================================

// TriggerType is the cause of a status transition
type TriggerType string

const (
	TriggerWebhook         TriggerType = "WEBHOOK"
	TriggerAPIVerification TriggerType = "API_VERIFICATION"
	TriggerReconciliation  TriggerType = "RECONCILIATION"
	TriggerLateMatch       TriggerType = "LATE_MATCH"
	TriggerManual          TriggerType = "MANUAL"
)

// =====================================================
// VERIFICATION METHOD
// =====================================================

// VerificationMethod expresses how strongly a transaction's status
// is believed. Methods are ordered by confidence and a transaction's
// method never decreases.
type VerificationMethod string

const (
	VerificationWebhookOnly VerificationMethod = "WEBHOOK_ONLY"
	VerificationAPIVerified VerificationMethod = "API_VERIFIED"
	VerificationReconciled  VerificationMethod = "RECONCILED"
)

// ConfidenceRank returns the ordering used to enforce monotonicity.
// Unknown methods rank lowest.
func (m VerificationMethod) ConfidenceRank() int {
	switch m {
	case VerificationWebhookOnly:
		return 1
	case VerificationAPIVerified:
		return 2
	case VerificationReconciled:
		return 3
	}
	return 0
}

// =====================================================
// AUDIT ACTIONS
// =====================================================

const (
	AuditActionTransactionCreated  = "TRANSACTION_CREATED"
	AuditActionStatusChanged       = "STATUS_CHANGED"
	AuditActionWebhookReceived     = "WEBHOOK_RECEIVED"
	AuditActionTransitionRejected  = "TRANSITION_REJECTED"
	AuditActionVerificationUpgrade = "VERIFICATION_UPGRADED"
	AuditActionProviderRefLinked   = "PROVIDER_REF_LINKED"
)
