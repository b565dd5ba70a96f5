package transaction

import (
	"context"

	"github.com/google/uuid"
)

// UpdateFields are the extra fields a state transition may apply atomically
// with the status change. Nil pointers leave the stored value untouched.
type UpdateFields struct {
	RetryCount      *int
	GatewayResponse *GatewayResponse
	WebhookStatus   *WebhookStatus
}

// Filter narrows List/Count queries
type Filter struct {
	Status *Status
	UserID string
}

// Metrics is the read-only aggregate view derived from the store
type Metrics struct {
	TotalTransactions         int64                   `json:"total_transactions"`
	SuccessRate               float64                 `json:"success_rate"`
	FailureRate               float64                 `json:"failure_rate"`
	AvgRetryCount             float64                 `json:"avg_retry_count"`
	StatusCounts              map[Status]int64        `json:"status_counts"`
	PaymentMethodDistribution map[PaymentMethod]int64 `json:"payment_method_distribution"`
}

// Repository defines transaction persistence operations. The store is the
// single source of truth; all status mutations go through conditional writes.
type Repository interface {
	// Create atomically inserts a new transaction. Returns
	// ErrDuplicateIdempotencyKey when a transaction with the same
	// idempotency key already exists.
	Create(ctx context.Context, tx *Transaction) error

	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// UpdateStatusIf applies the status change and extra fields in a single
	// conditional write that only commits if the stored status still equals
	// expected. Returns ErrStaleState when another writer moved first.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next Status, fields *UpdateFields) (*Transaction, error)

	// UpdateWebhookStatus overwrites the webhook delivery outcome. The write
	// is idempotent; duplicate notification deliveries are tolerated.
	UpdateWebhookStatus(ctx context.Context, id uuid.UUID, status WebhookStatus) error

	// ResetForRetry conditionally moves a FAILED transaction back to CREATED
	// with a zeroed retry count and cleared gateway response. This is the one
	// sanctioned backward transition, driven by the manual retry endpoint.
	ResetForRetry(ctx context.Context, id uuid.UUID) (*Transaction, error)

	List(ctx context.Context, filter Filter, limit, offset int) ([]*Transaction, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	AggregateMetrics(ctx context.Context) (*Metrics, error)
}

// ErrTransactionNotFound indicates a missing transaction
type ErrTransactionNotFound struct {
	ID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.ID.String()
}

// Is matches any ErrTransactionNotFound when the target carries a nil ID
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || e.ID == t.ID
}

// ErrDuplicateIdempotencyKey indicates the idempotency-key uniqueness
// constraint fired on insert. Not a true failure; the caller resolves it by
// returning the existing transaction.
type ErrDuplicateIdempotencyKey struct {
	Key string
}

func (e ErrDuplicateIdempotencyKey) Error() string {
	return "transaction with idempotency key already exists: " + e.Key
}

// Is matches any ErrDuplicateIdempotencyKey when the target carries no key
func (e ErrDuplicateIdempotencyKey) Is(target error) bool {
	t, ok := target.(ErrDuplicateIdempotencyKey)
	if !ok {
		return false
	}
	return t.Key == "" || e.Key == t.Key
}

// ErrStaleState indicates a conditional write found the stored status no
// longer equal to the expected one. The caller must not assume any side
// effect occurred.
type ErrStaleState struct {
	ID       uuid.UUID
	Expected Status
}

func (e ErrStaleState) Error() string {
	return "transaction " + e.ID.String() + " is no longer in state " + string(e.Expected)
}

// Is matches any ErrStaleState when the target carries a nil ID
func (e ErrStaleState) Is(target error) bool {
	t, ok := target.(ErrStaleState)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || (e.ID == t.ID && e.Expected == t.Expected)
}

// ErrRetryNotAllowed indicates a manual retry was requested for a
// transaction that is not FAILED
type ErrRetryNotAllowed struct {
	ID     uuid.UUID
	Status Status
}

func (e ErrRetryNotAllowed) Error() string {
	return "transaction " + e.ID.String() + " cannot be retried from state " + string(e.Status)
}

// Is matches any ErrRetryNotAllowed when the target carries a nil ID
func (e ErrRetryNotAllowed) Is(target error) bool {
	t, ok := target.(ErrRetryNotAllowed)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || e.ID == t.ID
}
