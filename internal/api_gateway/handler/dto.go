package handler

import (
	"time"

	"github.com/payflow-orchestrator/internal/domain/attempt"
	"github.com/payflow-orchestrator/internal/domain/transaction"
)

// SubmitPaymentRequest represents a request to submit a new payment.
// The idempotency key travels in the Idempotency-Key header, not the body.
type SubmitPaymentRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Currency      string `json:"currency" binding:"omitempty,len=3"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=UPI CARD WALLET"`
}

// PaymentResponse represents a transaction in API responses
type PaymentResponse struct {
	ID              string                       `json:"id"`
	IdempotencyKey  string                       `json:"idempotency_key"`
	UserID          string                       `json:"user_id"`
	Amount          int64                        `json:"amount"`
	Currency        string                       `json:"currency"`
	PaymentMethod   string                       `json:"payment_method"`
	Status          string                       `json:"status"`
	RetryCount      int                          `json:"retry_count"`
	MaxRetries      int                          `json:"max_retries"`
	GatewayResponse *transaction.GatewayResponse `json:"gateway_response,omitempty"`
	WebhookStatus   string                       `json:"webhook_status"`
	CreatedAt       string                       `json:"created_at"`
	UpdatedAt       string                       `json:"updated_at"`
}

// NewPaymentResponse maps a transaction onto its API representation
func NewPaymentResponse(tx *transaction.Transaction) PaymentResponse {
	return PaymentResponse{
		ID:              tx.ID.String(),
		IdempotencyKey:  tx.IdempotencyKey,
		UserID:          tx.UserID,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		PaymentMethod:   string(tx.PaymentMethod),
		Status:          string(tx.Status),
		RetryCount:      tx.RetryCount,
		MaxRetries:      tx.MaxRetries,
		GatewayResponse: tx.GatewayResponse,
		WebhookStatus:   string(tx.WebhookStatus),
		CreatedAt:       tx.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       tx.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// AttemptResponse represents one processing attempt in API responses
type AttemptResponse struct {
	Attempt    int    `json:"attempt"`
	Outcome    string `json:"outcome"`
	Final      bool   `json:"final"`
	RecordedAt string `json:"recorded_at"`
}

// NewAttemptResponse maps an audit record onto its API representation
func NewAttemptResponse(rec *attempt.Record) AttemptResponse {
	return AttemptResponse{
		Attempt:    rec.Attempt,
		Outcome:    string(rec.Outcome),
		Final:      rec.Final,
		RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339),
	}
}

// ListPaymentsParams represents filter and pagination query parameters
type ListPaymentsParams struct {
	Status  string `form:"status" binding:"omitempty,oneof=CREATED PROCESSING SUCCESS FAILED RETRYING"`
	UserID  string `form:"user_id"`
	Page    int    `form:"page,default=1" binding:"min=1"`
	PerPage int    `form:"per_page,default=10" binding:"min=1,max=100"`
}
