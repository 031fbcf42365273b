package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"payhook/internal/domains/transaction/model"
	"payhook/internal/domains/transaction/service"
	res "payhook/internal/shared/response"
)

type TransactionHandler struct {
	transactionService service.TransactionServiceInterface
}

func NewTransactionHandler(transactionService service.TransactionServiceInterface) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// =====================================================
// MERCHANT ENDPOINTS
// =====================================================

// Create registers a transaction before the provider webhook arrives
// POST /api/v1/transactions
func (h *TransactionHandler) Create(c *gin.Context) {
	var req model.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	txn, err := h.transactionService.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		statusCode, errCode := mapTransactionError(err)
		res.ErrorResponse(c, statusCode, errCode, err.Error())
		return
	}

	res.Success(c, http.StatusCreated, txn)
}

// GetByID returns one transaction
// GET /api/v1/transactions/:id
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.BadRequest(c, "invalid transaction id")
		return
	}

	txn, err := h.transactionService.GetByID(c.Request.Context(), id)
	if err != nil {
		statusCode, errCode := mapTransactionError(err)
		res.ErrorResponse(c, statusCode, errCode, err.Error())
		return
	}

	res.Success(c, http.StatusOK, txn)
}

// =====================================================
// ADMIN ENDPOINTS
// =====================================================

// GetDetail returns a transaction with its full audit trail
// GET /api/v1/admin/transactions/:id
func (h *TransactionHandler) GetDetail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.BadRequest(c, "invalid transaction id")
		return
	}

	detail, err := h.transactionService.GetDetail(c.Request.Context(), id)
	if err != nil {
		statusCode, errCode := mapTransactionError(err)
		res.ErrorResponse(c, statusCode, errCode, err.Error())
		return
	}

	res.Success(c, http.StatusOK, detail)
}

// ManualTransition applies an operator override
// POST /api/v1/admin/transactions/:id/transition
func (h *TransactionHandler) ManualTransition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.BadRequest(c, "invalid transaction id")
		return
	}

	var req model.ManualTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		res.BadRequest(c, err.Error())
		return
	}

	txn, err := h.transactionService.ManualTransition(c.Request.Context(), id, req, actorFrom(c))
	if err != nil {
		statusCode, errCode := mapTransactionError(err)
		res.ErrorResponse(c, statusCode, errCode, err.Error())
		return
	}

	res.Success(c, http.StatusOK, txn)
}

// List pages through transactions with optional filters
// GET /api/v1/admin/transactions
func (h *TransactionHandler) List(c *gin.Context) {
	filters := map[string]interface{}{}
	if provider := c.Query("provider"); provider != "" {
		filters["provider"] = provider
	}
	if status := c.Query("status"); status != "" {
		if !model.TransactionStatus(status).IsValid() {
			res.BadRequest(c, "unknown transaction status")
			return
		}
		filters["status"] = status
	}

	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 20)

	txns, total, err := h.transactionService.AdminList(c.Request.Context(), filters, page, limit)
	if err != nil {
		res.InternalServerError(c, err.Error())
		return
	}

	res.SuccessWithMeta(c, http.StatusOK, txns, &res.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// =====================================================
// HELPERS
// =====================================================

// actorFrom reads the subject the auth middleware stored
func actorFrom(c *gin.Context) string {
	if actor, ok := c.Get("actor"); ok {
		if s, ok := actor.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

func intQuery(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// mapTransactionError maps domain errors to HTTP status + code
func mapTransactionError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrTransactionNotFound):
		return http.StatusNotFound, model.ErrCodeNotFound
	case errors.Is(err, model.ErrDuplicateApplicationRef):
		return http.StatusConflict, model.ErrCodeDuplicateAppRef
	case errors.Is(err, model.ErrTransitionRejected):
		return http.StatusConflict, model.ErrCodeTransitionRejected
	case errors.Is(err, model.ErrProviderRefConflict):
		return http.StatusConflict, model.ErrCodeProviderRefConflict
	case errors.Is(err, model.ErrVerificationDowngrade):
		return http.StatusConflict, model.ErrCodeVerificationConflict
	}

	var coded *model.TransactionError
	if errors.As(err, &coded) && coded.Code == model.ErrCodeInvalidRequest {
		return http.StatusBadRequest, coded.Code
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
