package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/domain/attempt"
	"github.com/payflow-orchestrator/internal/domain/job"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/platform/messaging/producers"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

// PaymentServiceImpl implements the PaymentService interface
type PaymentServiceImpl struct {
	repo         transaction.Repository
	attempts     attempt.Repository
	paymentQueue JobEnqueuer
	events       EventPublisher // nil when the event stream is disabled
	logger       *slog.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	logger *slog.Logger,
	repo transaction.Repository,
	attempts attempt.Repository,
	paymentQueue JobEnqueuer,
	events EventPublisher,
) PaymentService {
	return &PaymentServiceImpl{
		repo:         repo,
		attempts:     attempts,
		paymentQueue: paymentQueue,
		events:       events,
		logger:       logger,
	}
}

// SubmitPayment persists the transaction and schedules exactly one
// processing job. Duplicate suppression rides on the store's unique
// idempotency-key constraint; the insert either fully succeeds or the
// stored original is returned, so two racing submissions can never both
// create a transaction or both schedule a job.
func (s *PaymentServiceImpl) SubmitPayment(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, bool, error) {
	if err := s.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, transaction.ErrDuplicateIdempotencyKey{}) {
			existing, getErr := s.repo.GetByIdempotencyKey(ctx, tx.IdempotencyKey)
			if getErr != nil {
				s.logger.Error("Failed to load existing transaction after duplicate submission",
					"idempotency_key", tx.IdempotencyKey,
					"error", getErr,
				)
				return nil, false, getErr
			}
			if existing == nil {
				// The duplicate row vanished between insert and read; rows
				// are never deleted, so this indicates store corruption.
				return nil, false, err
			}
			s.logger.Info("Duplicate submission suppressed",
				"idempotency_key", tx.IdempotencyKey,
				"transaction_id", existing.ID.String(),
				"status", string(existing.Status),
			)
			return existing, false, nil
		}
		s.logger.Error("Failed to create transaction", "idempotency_key", tx.IdempotencyKey, "error", err)
		return nil, false, err
	}

	if _, err := s.paymentQueue.Enqueue(ctx,
		job.PaymentJob{TransactionID: tx.ID, Status: tx.Status},
		queue.JobOptions{MaxAttempts: tx.MaxRetries},
	); err != nil {
		// The transaction stays CREATED in the store; the manual retry
		// endpoint can recover it.
		s.logger.Error("Failed to schedule payment job", "transaction_id", tx.ID.String(), "error", err)
		return nil, false, err
	}

	s.publishEvent(ctx, tx)
	s.logger.Info("Payment accepted",
		"transaction_id", tx.ID.String(),
		"user_id", tx.UserID,
		"amount", tx.Amount,
		"payment_method", string(tx.PaymentMethod),
	)
	return tx, true, nil
}

// GetPayment retrieves a transaction by its ID
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPayments retrieves a filtered page of transactions, newest first
func (s *PaymentServiceImpl) ListPayments(ctx context.Context, filter transaction.Filter, page, perPage int) ([]*transaction.Transaction, int64, error) {
	offset := (page - 1) * perPage

	transactions, err := s.repo.List(ctx, filter, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

// RetryPayment resets a FAILED transaction and schedules a fresh run. The
// reset is a conditional write, so a concurrent retry of the same
// transaction schedules at most one new job.
func (s *PaymentServiceImpl) RetryPayment(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != transaction.StatusFailed {
		return nil, transaction.ErrRetryNotAllowed{ID: id, Status: tx.Status}
	}

	reset, err := s.repo.ResetForRetry(ctx, id)
	if err != nil {
		if errors.Is(err, transaction.ErrStaleState{}) {
			// Lost the race against another retry or a late transition
			current, getErr := s.repo.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, transaction.ErrRetryNotAllowed{ID: id, Status: current.Status}
		}
		return nil, err
	}

	if _, err := s.paymentQueue.Enqueue(ctx,
		job.PaymentJob{TransactionID: reset.ID, Status: reset.Status},
		queue.JobOptions{MaxAttempts: reset.MaxRetries},
	); err != nil {
		s.logger.Error("Failed to schedule retry job", "transaction_id", id.String(), "error", err)
		return nil, err
	}

	s.publishEvent(ctx, reset)
	s.logger.Info("Manual retry scheduled", "transaction_id", id.String())
	return reset, nil
}

// GetAttempts retrieves the processing audit trail for a transaction.
// The transaction must exist; an empty trail is valid for transactions
// that have not reached a worker yet.
func (s *PaymentServiceImpl) GetAttempts(ctx context.Context, id uuid.UUID) ([]*attempt.Record, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.attempts.GetByTransactionID(ctx, id)
}

// GetMetrics derives aggregate counters from the store
func (s *PaymentServiceImpl) GetMetrics(ctx context.Context) (*transaction.Metrics, error) {
	return s.repo.AggregateMetrics(ctx)
}

func (s *PaymentServiceImpl) publishEvent(ctx context.Context, tx *transaction.Transaction) {
	if s.events == nil {
		return
	}
	event := producers.PaymentEvent{
		TransactionID: tx.ID.String(),
		Status:        string(tx.Status),
		RetryCount:    tx.RetryCount,
		OccurredAt:    tx.UpdatedAt,
	}
	if err := s.events.Publish(ctx, tx.ID.String(), event); err != nil {
		s.logger.Error("Failed to publish lifecycle event", "transaction_id", tx.ID.String(), "error", err)
	}
}
