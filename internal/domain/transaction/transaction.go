package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the per-transaction ceiling on business retry
// attempts, fixed at creation time.
const DefaultMaxRetries = 3

// DefaultCurrency is used when the caller omits the currency.
const DefaultCurrency = "USD"

// Common validation errors
var (
	ErrEmptyUserID          = errors.New("user id cannot be empty")
	ErrEmptyIdempotencyKey  = errors.New("idempotency key cannot be empty")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidPaymentMethod = errors.New("payment method must be one of UPI, CARD, WALLET")
	ErrInvalidCurrency      = errors.New("currency must be a 3-letter code")
)

// Status defines the processing lifecycle states of a transaction
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusRetrying   Status = "RETRYING"
)

// PaymentMethod defines the supported payment instruments
type PaymentMethod string

const (
	PaymentMethodUPI    PaymentMethod = "UPI"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodWallet PaymentMethod = "WALLET"
)

// WebhookStatus tracks notification delivery, independently of Status
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "PENDING"
	WebhookStatusSuccess WebhookStatus = "SUCCESS"
	WebhookStatusFailed  WebhookStatus = "FAILED"
)

// GatewayResponse is the last recorded outcome payload from the gateway
type GatewayResponse struct {
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Final     bool   `json:"final,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Transaction represents a payment intent and its processing state.
// Rows are never deleted; the table is the audit trail for metrics and
// manual retry.
type Transaction struct {
	ID              uuid.UUID        `json:"id"`
	IdempotencyKey  string           `json:"idempotency_key"`
	UserID          string           `json:"user_id"`
	Amount          int64            `json:"amount"` // Stored in cents/minor units
	Currency        string           `json:"currency"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	Status          Status           `json:"status"`
	RetryCount      int              `json:"retry_count"`
	MaxRetries      int              `json:"max_retries"`
	GatewayResponse *GatewayResponse `json:"gateway_response,omitempty"`
	WebhookStatus   WebhookStatus    `json:"webhook_status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// New validates the caller-supplied fields and builds a transaction in the
// CREATED state. No persistence is attempted here; validation failures must
// reject the submission before any storage is touched.
func New(userID string, amount int64, currency string, method PaymentMethod, idempotencyKey string) (*Transaction, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if idempotencyKey == "" {
		return nil, ErrEmptyIdempotencyKey
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !ValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}

	now := time.Now()
	return &Transaction{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		UserID:         userID,
		Amount:         amount,
		Currency:       currency,
		PaymentMethod:  method,
		Status:         StatusCreated,
		RetryCount:     0,
		MaxRetries:     DefaultMaxRetries,
		WebhookStatus:  WebhookStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ValidPaymentMethod reports whether m is a supported payment instrument
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodUPI, PaymentMethodCard, PaymentMethodWallet:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known lifecycle state
func ValidStatus(s Status) bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusSuccess, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether the transaction reached SUCCESS or FAILED.
// Terminal transactions never produce further automatic processing.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}
