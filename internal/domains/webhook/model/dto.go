package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =====================================================
// REQUEST/RESPONSE DTOs
// =====================================================

// ListWebhooksRequest filters the admin webhook listing
type ListWebhooksRequest struct {
	Provider string `form:"provider"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

func (r *ListWebhooksRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status, validation.By(func(interface{}) error {
			if r.Status == "" {
				return nil
			}
			if !ProcessingStatus(r.Status).IsValid() {
				return validation.NewError("validation_status", "unknown processing status")
			}
			return nil
		})),
		validation.Field(&r.Page, validation.Min(0)),
		validation.Field(&r.PageSize, validation.Min(0), validation.Max(200)),
	)
}

// Normalize applies listing defaults
func (r *ListWebhooksRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
}

// WebhookStats summarizes claim fates for the admin dashboard
type WebhookStats struct {
	Total          int64            `json:"total"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByProvider     map[string]int64 `json:"by_provider"`
	SignatureFails int64            `json:"signature_fails"`
	Since          time.Time        `json:"since"`
}
