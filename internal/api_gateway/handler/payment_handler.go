package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/api_gateway/service"
	"github.com/payflow-orchestrator/internal/domain/transaction"
)

// IdempotencyKeyHeader is the HTTP header carrying the caller's
// deduplication token. Submissions without it are rejected.
const IdempotencyKeyHeader = "Idempotency-Key"

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Submit handles POST /api/v1/payments. A fresh submission answers 201; a
// replay of a known idempotency key answers 200 with the stored transaction.
func (h *PaymentHandler) Submit(c *gin.Context) {
	idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
	if idempotencyKey == "" {
		RespondBadRequest(c, "Idempotency-Key header is required")
		return
	}

	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	tx, err := transaction.New(req.UserID, req.Amount, req.Currency, transaction.PaymentMethod(req.PaymentMethod), idempotencyKey)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	result, created, err := h.paymentService.SubmitPayment(c.Request.Context(), tx)
	if err != nil {
		h.logger.Error("Failed to submit payment", "error", err)
		RespondInternalError(c)
		return
	}

	if created {
		RespondCreated(c, NewPaymentResponse(result))
		return
	}
	RespondOK(c, NewPaymentResponse(result))
}

// GetByID handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid payment ID format")
		return
	}

	tx, err := h.paymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			RespondNotFound(c, "Payment not found")
			return
		}
		h.logger.Error("Failed to get payment", "payment_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, NewPaymentResponse(tx))
}

// List handles GET /api/v1/payments with optional status and user filters
func (h *PaymentHandler) List(c *gin.Context) {
	var params ListPaymentsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	filter := transaction.Filter{UserID: params.UserID}
	if params.Status != "" {
		status := transaction.Status(params.Status)
		filter.Status = &status
	}

	transactions, total, err := h.paymentService.ListPayments(c.Request.Context(), filter, params.Page, params.PerPage)
	if err != nil {
		h.logger.Error("Failed to list payments", "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]PaymentResponse, 0, len(transactions))
	for _, tx := range transactions {
		responses = append(responses, NewPaymentResponse(tx))
	}

	RespondWithPaginatedData(c, 200, responses, params.Page, params.PerPage, int(total))
}

// GetAttempts handles GET /api/v1/payments/:id/attempts
func (h *PaymentHandler) GetAttempts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid payment ID format")
		return
	}

	records, err := h.paymentService.GetAttempts(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			RespondNotFound(c, "Payment not found")
			return
		}
		h.logger.Error("Failed to get processing attempts", "payment_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]AttemptResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, NewAttemptResponse(rec))
	}

	RespondOK(c, responses)
}

// Retry handles POST /api/v1/payments/:id/retry. Only FAILED transactions
// can be rerun; anything else answers 409.
func (h *PaymentHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid payment ID format")
		return
	}

	tx, err := h.paymentService.RetryPayment(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, transaction.ErrTransactionNotFound{}):
			RespondNotFound(c, "Payment not found")
		case errors.Is(err, transaction.ErrRetryNotAllowed{}):
			RespondConflict(c, err.Error())
		default:
			h.logger.Error("Failed to retry payment", "payment_id", id.String(), "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, NewPaymentResponse(tx))
}

// GetMetrics handles GET /api/v1/admin/metrics
func (h *PaymentHandler) GetMetrics(c *gin.Context) {
	metrics, err := h.paymentService.GetMetrics(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate metrics", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, metrics)
}
