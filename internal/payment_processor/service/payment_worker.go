package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/config"
	"github.com/payflow-orchestrator/internal/domain/attempt"
	"github.com/payflow-orchestrator/internal/domain/job"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/payment_processor/gateway"
	"github.com/payflow-orchestrator/internal/payment_processor/statemachine"
	"github.com/payflow-orchestrator/internal/platform/locking"
	"github.com/payflow-orchestrator/internal/platform/messaging/producers"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

// PaymentWorker consumes payment jobs and drives each transaction through
// the lifecycle: acquire the per-transaction lock, move to PROCESSING,
// charge the gateway, then settle in SUCCESS, RETRYING or FAILED.
type PaymentWorker struct {
	repo         transaction.Repository
	sm           TransitionApplier
	locks        locking.LockService
	charger      gateway.Charger
	attempts     attempt.Repository
	webhookQueue JobEnqueuer
	events       EventPublisher      // nil when the event stream is disabled
	dlq          DeadLetterPublisher // nil when the DLQ is disabled
	lockCfg      *config.LockConfig
	logger       *slog.Logger
}

func NewPaymentWorker(
	logger *slog.Logger,
	repo transaction.Repository,
	sm TransitionApplier,
	locks locking.LockService,
	charger gateway.Charger,
	attempts attempt.Repository,
	webhookQueue JobEnqueuer,
	events EventPublisher,
	dlq DeadLetterPublisher,
	lockCfg *config.LockConfig,
) *PaymentWorker {
	return &PaymentWorker{
		repo:         repo,
		sm:           sm,
		locks:        locks,
		charger:      charger,
		attempts:     attempts,
		webhookQueue: webhookQueue,
		events:       events,
		dlq:          dlq,
		lockCfg:      lockCfg,
		logger:       logger,
	}
}

// Handle processes one delivery of a payment job. Lock contention and lock
// service errors are reported as transient so they never consume one of the
// transaction's business retries.
func (w *PaymentWorker) Handle(ctx context.Context, qjob *queue.Job) error {
	var payload job.PaymentJob
	if err := json.Unmarshal(qjob.Payload, &payload); err != nil {
		w.logger.Error("Dropping payment job with undecodable payload", "job_id", qjob.ID, "error", err)
		w.deadLetter(ctx, qjob.ID, qjob.Payload, "undecodable payment job payload")
		return queue.Permanent(err)
	}

	logger := w.logger.With("transaction_id", payload.TransactionID.String(), "job_id", qjob.ID)

	lockKey := w.lockCfg.KeyPrefix + payload.TransactionID.String()
	acquired, err := w.locks.Acquire(ctx, lockKey, w.lockCfg.TTL)
	if err != nil {
		logger.Warn("Lock service unavailable, deferring job", "error", err)
		return queue.Transient(err)
	}
	if !acquired {
		logger.Debug("Transaction lock held elsewhere, deferring job")
		return queue.Transient(fmt.Errorf("lock %s is held by another worker", lockKey))
	}
	defer func() {
		// Release must proceed even when the worker is shutting down
		if releaseErr := w.locks.Release(context.WithoutCancel(ctx), lockKey); releaseErr != nil {
			logger.Error("Failed to release transaction lock, waiting for TTL expiry", "error", releaseErr)
		}
	}()

	tx, err := w.repo.GetByID(ctx, payload.TransactionID)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			logger.Error("Payment job references an unknown transaction")
			w.deadLetter(ctx, payload.TransactionID.String(), qjob.Payload, "transaction not found")
			return queue.Permanent(err)
		}
		return err
	}

	if tx.IsTerminal() {
		// Duplicate delivery after the transaction already settled
		logger.Info("Transaction already terminal, ignoring job", "status", string(tx.Status))
		return nil
	}

	if tx.Status == transaction.StatusCreated || tx.Status == transaction.StatusRetrying {
		tx, err = w.sm.Transition(ctx, tx.ID, tx.Status, transaction.StatusProcessing, nil)
		if err != nil {
			return w.settleTransitionError(ctx, logger, qjob, err)
		}
	}

	resp, chargeErr := w.charger.Charge(ctx, tx)
	if chargeErr != nil && errors.Is(chargeErr, ctx.Err()) {
		// Shutdown mid-charge; the job stays in the store as PROCESSING and
		// a redelivery resumes it.
		return chargeErr
	}

	exhausted := qjob.AttemptsMade >= qjob.MaxAttempts
	w.recordAttempt(ctx, logger, tx.ID, qjob.AttemptsMade, chargeErr, chargeErr == nil || exhausted)

	if chargeErr == nil {
		updated, err := w.sm.Transition(ctx, tx.ID, transaction.StatusProcessing, transaction.StatusSuccess,
			&transaction.UpdateFields{GatewayResponse: resp})
		if err != nil {
			return w.settleTransitionError(ctx, logger, qjob, err)
		}
		w.enqueueWebhook(ctx, logger, updated)
		w.publishEvent(ctx, logger, updated)
		logger.Info("Payment charged", "attempts_made", qjob.AttemptsMade)
		return nil
	}

	retryCount := tx.RetryCount + 1
	fields := &transaction.UpdateFields{RetryCount: &retryCount, GatewayResponse: resp}

	if exhausted {
		updated, err := w.sm.Transition(ctx, tx.ID, transaction.StatusProcessing, transaction.StatusFailed, fields)
		if err != nil {
			return w.settleTransitionError(ctx, logger, qjob, err)
		}
		w.publishEvent(ctx, logger, updated)
		logger.Warn("Payment failed permanently", "attempts_made", qjob.AttemptsMade, "error", chargeErr)
		return chargeErr
	}

	updated, err := w.sm.Transition(ctx, tx.ID, transaction.StatusProcessing, transaction.StatusRetrying, fields)
	if err != nil {
		return w.settleTransitionError(ctx, logger, qjob, err)
	}
	w.publishEvent(ctx, logger, updated)
	logger.Info("Payment attempt failed, will retry",
		"attempts_made", qjob.AttemptsMade,
		"retry_count", retryCount,
		"error", chargeErr,
	)
	return chargeErr
}

// settleTransitionError maps state machine failures onto queue semantics.
// A stale or invalid transition means another writer already settled the
// transaction; redelivering could only repeat the conflict.
func (w *PaymentWorker) settleTransitionError(ctx context.Context, logger *slog.Logger, qjob *queue.Job, err error) error {
	if errors.Is(err, transaction.ErrStaleState{}) {
		logger.Warn("Concurrent writer moved the transaction first, dropping job", "error", err)
		return queue.Permanent(err)
	}
	var invalid statemachine.ErrInvalidTransition
	if errors.As(err, &invalid) {
		logger.Error("Payment job drove an illegal transition", "error", err)
		w.deadLetter(ctx, qjob.ID, qjob.Payload, invalid.Error())
		return queue.Permanent(err)
	}
	return err
}

// recordAttempt appends to the audit log, best-effort. Audit failures must
// never affect the payment outcome.
func (w *PaymentWorker) recordAttempt(ctx context.Context, logger *slog.Logger, id uuid.UUID, attemptNum int, chargeErr error, final bool) {
	if w.attempts == nil {
		return
	}

	outcome := attempt.OutcomeSuccess
	switch {
	case errors.Is(chargeErr, gateway.ErrGatewayTimeout):
		outcome = attempt.OutcomeTimeout
	case errors.Is(chargeErr, gateway.ErrGatewayHardFailure):
		outcome = attempt.OutcomeHardFailure
	}

	record := attempt.NewRecord(id, attemptNum, outcome, final)
	if err := w.attempts.Record(ctx, record); err != nil {
		logger.Error("Failed to append processing attempt to audit log", "error", err)
	}
}

func (w *PaymentWorker) enqueueWebhook(ctx context.Context, logger *slog.Logger, tx *transaction.Transaction) {
	if _, err := w.webhookQueue.Enqueue(ctx, job.WebhookJob{TransactionID: tx.ID}, queue.JobOptions{}); err != nil {
		logger.Error("Failed to enqueue webhook notification", "error", err)
	}
}

func (w *PaymentWorker) publishEvent(ctx context.Context, logger *slog.Logger, tx *transaction.Transaction) {
	if w.events == nil {
		return
	}
	event := producers.PaymentEvent{
		TransactionID: tx.ID.String(),
		Status:        string(tx.Status),
		RetryCount:    tx.RetryCount,
		OccurredAt:    tx.UpdatedAt,
	}
	if err := w.events.Publish(ctx, tx.ID.String(), event); err != nil {
		logger.Error("Failed to publish lifecycle event", "error", err)
	}
}

func (w *PaymentWorker) deadLetter(ctx context.Context, key string, payload []byte, reason string) {
	if w.dlq == nil {
		return
	}
	if err := w.dlq.PublishToDLQ(ctx, key, payload, reason); err != nil {
		w.logger.Error("Failed to publish job to DLQ", "key", key, "reason", reason, "error", err)
	}
}
