package model

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// =====================================================
// MONEY VALUE OBJECT
// =====================================================

// Money is an amount in the smallest currency unit plus its ISO-4217
// currency code. Amounts are never fractional.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Amount, validation.Min(int64(0))),
		validation.Field(&m.Currency,
			validation.Required,
			validation.Match(currencyPattern).Error("must be 3 uppercase letters"),
		),
	)
}

// =====================================================
// REQUEST DTOS
// =====================================================

// CreateTransactionRequest creates a transaction ahead of the
// provider's webhook (the usual flow: merchant initiates, webhook
// confirms)
type CreateTransactionRequest struct {
	ApplicationRef string                 `json:"application_ref"`
	Provider       string                 `json:"provider"`
	Amount         int64                  `json:"amount"`
	Currency       string                 `json:"currency"`
	ProviderRef    *string                `json:"provider_ref,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func (r CreateTransactionRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.ApplicationRef, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Provider, validation.Required, validation.Length(1, 32)),
	); err != nil {
		return err
	}
	return Money{Amount: r.Amount, Currency: r.Currency}.Validate()
}

// ManualTransitionRequest applies an operator-driven transition
type ManualTransitionRequest struct {
	TargetStatus TransactionStatus `json:"target_status"`
	Reason       string            `json:"reason"`
	Force        bool              `json:"force"`
}

func (r ManualTransitionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TargetStatus, validation.Required,
			validation.By(func(value interface{}) error {
				if s, _ := value.(TransactionStatus); !s.IsValid() {
					return ErrInvalidStatus
				}
				return nil
			}),
		),
		validation.Field(&r.Reason, validation.Required, validation.Length(1, 512)),
	)
}

// =====================================================
// AUDIT ENTRY PARAMS
// =====================================================

// AuditEntry describes the audit row written together with a status
// change. The repository fills id, transaction id and timestamp.
type AuditEntry struct {
	Action             string
	FromStatus         *TransactionStatus
	ToStatus           TransactionStatus
	TriggerType        TriggerType
	WebhookLogID       *uuid.UUID
	VerificationMethod *VerificationMethod
	Actor              string
	Reason             string
	Metadata           map[string]interface{}
}
