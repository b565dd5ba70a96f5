package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/domain/attempt"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

// PaymentService defines the operations exposed by the HTTP API
type PaymentService interface {
	// SubmitPayment atomically creates a transaction and schedules its
	// processing. When a transaction with the same idempotency key already
	// exists, the stored one is returned with created=false and nothing is
	// scheduled.
	SubmitPayment(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, bool, error)

	// GetPayment retrieves one transaction.
	// Returns ErrTransactionNotFound if it doesn't exist.
	GetPayment(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)

	// ListPayments retrieves a filtered, paginated list of transactions
	// together with the total count matching the filter.
	ListPayments(ctx context.Context, filter transaction.Filter, page, perPage int) ([]*transaction.Transaction, int64, error)

	// RetryPayment resets a FAILED transaction back to CREATED and schedules
	// a fresh processing run. Returns ErrRetryNotAllowed when the
	// transaction is in any other state.
	RetryPayment(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)

	// GetAttempts retrieves the processing audit trail of a transaction
	GetAttempts(ctx context.Context, id uuid.UUID) ([]*attempt.Record, error)

	// GetMetrics derives the aggregate dashboard view from the store
	GetMetrics(ctx context.Context) (*transaction.Metrics, error)
}

// JobEnqueuer schedules a job for delivery. *queue.Queue satisfies it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, opts queue.JobOptions) (string, error)
}

// EventPublisher pushes lifecycle events to the event stream
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}
