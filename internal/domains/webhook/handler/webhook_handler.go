package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/service"
	res "payhook/internal/shared/response"
	"payhook/pkg/logger"
)

type WebhookHandler struct {
	processor     *service.Processor
	adminService  service.AdminServiceInterface
	exportService service.ExportServiceInterface
}

func NewWebhookHandler(
	processor *service.Processor,
	adminService service.AdminServiceInterface,
	exportService service.ExportServiceInterface,
) *WebhookHandler {
	return &WebhookHandler{
		processor:     processor,
		adminService:  adminService,
		exportService: exportService,
	}
}

// =====================================================
// PUBLIC INGESTION ENDPOINT
// =====================================================

// Ingest receives one provider delivery
// POST /api/v1/webhooks/:provider
//
// The provider is always answered 200 so it stops retrying; the
// claim's fate travels in the body. Refusing here would only make the
// provider hammer an endpoint that already recorded the claim.
func (h *WebhookHandler) Ingest(c *gin.Context) {
	provider := c.Param("provider")

	// Raw bytes, untouched; signature verification depends on them
	rawBody, err := c.GetRawData()
	if err != nil {
		logger.Error("failed to read webhook body", err)
		c.JSON(http.StatusOK, &model.ProcessingResult{
			Success:          false,
			ProcessingStatus: model.FateParseError,
			Error:            "failed to read request body",
		})
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	result := h.processor.Process(c.Request.Context(), provider, rawBody, headers)
	c.JSON(http.StatusOK, result)
}

// =====================================================
// ADMIN ENDPOINTS
// =====================================================

// List pages through recent claims
// GET /api/v1/admin/webhooks
func (h *WebhookHandler) List(c *gin.Context) {
	var req model.ListWebhooksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	logs, total, err := h.adminService.List(c.Request.Context(), &req)
	if err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	res.SuccessWithMeta(c, http.StatusOK, logs, &res.Meta{
		Page:  req.Page,
		Limit: req.PageSize,
		Total: int(total),
	})
}

// GetDetail returns one claim with its dispatch records
// GET /api/v1/admin/webhooks/:id
func (h *WebhookHandler) GetDetail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.BadRequest(c, "invalid webhook log id")
		return
	}

	detail, err := h.adminService.GetDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrWebhookNotFound) {
			res.NotFound(c, err.Error())
			return
		}
		res.InternalServerError(c, err.Error())
		return
	}

	res.Success(c, http.StatusOK, detail)
}

// GetStats summarizes claim fates
// GET /api/v1/admin/webhooks/stats?hours=24
func (h *WebhookHandler) GetStats(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			res.BadRequest(c, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.adminService.GetStats(c.Request.Context(), since)
	if err != nil {
		res.InternalServerError(c, err.Error())
		return
	}

	res.Success(c, http.StatusOK, stats)
}

// Export streams the xlsx reconciliation report
// GET /api/v1/admin/webhooks/export?hours=168
func (h *WebhookHandler) Export(c *gin.Context) {
	hours := 168
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			res.BadRequest(c, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	report, err := h.exportService.BuildReport(c.Request.Context(), since)
	if err != nil {
		logger.Error("failed to build reconciliation report", err)
		res.InternalServerError(c, "failed to build report")
		return
	}

	filename := fmt.Sprintf("payhook-report-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report)
}
