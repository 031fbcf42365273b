package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrDuplicateApplicationRef = errors.New("application reference already exists")
	ErrProviderRefConflict     = errors.New("provider reference already set to a different value")
	ErrVerificationDowngrade   = errors.New("verification method cannot decrease in confidence")
	ErrInvalidStatus           = errors.New("invalid transaction status")
	ErrTransitionRejected      = errors.New("transition rejected")
)

// TransitionRejectedError carries the state machine's rejection out
// of the locked update path, so callers can tell a policy rejection
// apart from a storage failure.
type TransitionRejectedError struct {
	From   TransactionStatus
	To     TransactionStatus
	Reason string
}

func (e *TransitionRejectedError) Error() string {
	return fmt.Sprintf("transition %s -> %s rejected: %s", e.From, e.To, e.Reason)
}

func (e *TransitionRejectedError) Unwrap() error {
	return ErrTransitionRejected
}

// =====================================================
// INTERNAL ERROR CODES
// =====================================================

const (
	ErrCodeNotFound             = "TXN001"
	ErrCodeDuplicateAppRef      = "TXN002"
	ErrCodeProviderRefConflict  = "TXN003"
	ErrCodeTransitionRejected   = "TXN004"
	ErrCodeVerificationConflict = "TXN005"
	ErrCodeInvalidRequest       = "TXN006"
)

// =====================================================
// CUSTOM TRANSACTION ERROR
// =====================================================

type TransactionError struct {
	Code    string
	Message string
	Err     error
}

func (e *TransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func NewTransactionError(code, message string, err error) *TransactionError {
	return &TransactionError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewNotFoundError(ref string) *TransactionError {
	return NewTransactionError(
		ErrCodeNotFound,
		fmt.Sprintf("Transaction not found: %s", ref),
		ErrTransactionNotFound,
	)
}

func NewDuplicateAppRefError(applicationRef string) *TransactionError {
	return NewTransactionError(
		ErrCodeDuplicateAppRef,
		fmt.Sprintf("Application reference %s already exists", applicationRef),
		ErrDuplicateApplicationRef,
	)
}

func NewProviderRefConflictError(existing, incoming string) *TransactionError {
	return NewTransactionError(
		ErrCodeProviderRefConflict,
		fmt.Sprintf("Provider reference already set to %s, refusing %s", existing, incoming),
		ErrProviderRefConflict,
	)
}
