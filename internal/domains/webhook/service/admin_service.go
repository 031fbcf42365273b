package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/repository"
)

// =====================================================
// WEBHOOK ADMIN SERVICE
// =====================================================

// WebhookDetail pairs a claim with its handler invocation records
type WebhookDetail struct {
	Log          *model.WebhookLog    `json:"log"`
	DispatchLogs []*model.DispatchLog `json:"dispatch_logs"`
}

// AdminServiceInterface is the read-only surface for the operator
// dashboard
type AdminServiceInterface interface {
	List(ctx context.Context, req *model.ListWebhooksRequest) ([]*model.WebhookLog, int64, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*WebhookDetail, error)
	GetStats(ctx context.Context, since time.Time) (*model.WebhookStats, error)
}

type adminService struct {
	webhookRepo  repository.WebhookRepoInterface
	dispatchRepo repository.DispatchRepoInterface
}

func NewAdminService(webhookRepo repository.WebhookRepoInterface, dispatchRepo repository.DispatchRepoInterface) AdminServiceInterface {
	return &adminService{
		webhookRepo:  webhookRepo,
		dispatchRepo: dispatchRepo,
	}
}

func (s *adminService) List(ctx context.Context, req *model.ListWebhooksRequest) ([]*model.WebhookLog, int64, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	req.Normalize()
	return s.webhookRepo.List(ctx, req)
}

func (s *adminService) GetDetail(ctx context.Context, id uuid.UUID) (*WebhookDetail, error) {
	log, err := s.webhookRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dispatches, err := s.dispatchRepo.ListByWebhookLogID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WebhookDetail{Log: log, DispatchLogs: dispatches}, nil
}

func (s *adminService) GetStats(ctx context.Context, since time.Time) (*model.WebhookStats, error) {
	return s.webhookRepo.GetStats(ctx, since)
}
