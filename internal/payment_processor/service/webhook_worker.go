package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/payflow-orchestrator/internal/domain/job"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/payment_processor/notifier"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

// WebhookWorker consumes webhook jobs and delivers terminal-state
// notifications. The webhook status tracks delivery independently of the
// payment lifecycle: PENDING until delivery lands, FAILED only once the
// final delivery attempt is spent.
type WebhookWorker struct {
	repo     transaction.Repository
	notifier notifier.Notifier
	dlq      DeadLetterPublisher // nil when the DLQ is disabled
	logger   *slog.Logger
}

func NewWebhookWorker(logger *slog.Logger, repo transaction.Repository, n notifier.Notifier, dlq DeadLetterPublisher) *WebhookWorker {
	return &WebhookWorker{
		repo:     repo,
		notifier: n,
		dlq:      dlq,
		logger:   logger,
	}
}

// Handle processes one delivery of a webhook job
func (w *WebhookWorker) Handle(ctx context.Context, qjob *queue.Job) error {
	var payload job.WebhookJob
	if err := json.Unmarshal(qjob.Payload, &payload); err != nil {
		w.logger.Error("Dropping webhook job with undecodable payload", "job_id", qjob.ID, "error", err)
		w.deadLetter(ctx, qjob.ID, qjob.Payload, "undecodable webhook job payload")
		return queue.Permanent(err)
	}

	logger := w.logger.With("transaction_id", payload.TransactionID.String(), "job_id", qjob.ID)

	tx, err := w.repo.GetByID(ctx, payload.TransactionID)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			logger.Error("Webhook job references an unknown transaction")
			w.deadLetter(ctx, payload.TransactionID.String(), qjob.Payload, "transaction not found")
			return queue.Permanent(err)
		}
		return err
	}

	deliverErr := w.notifier.Deliver(ctx, tx)
	if deliverErr == nil {
		if err := w.repo.UpdateWebhookStatus(ctx, tx.ID, transaction.WebhookStatusSuccess); err != nil {
			// Redelivery will repeat the notification; the overwrite is
			// idempotent so that is safe.
			return err
		}
		logger.Info("Webhook delivered", "attempts_made", qjob.AttemptsMade)
		return nil
	}

	if errors.Is(deliverErr, ctx.Err()) {
		return deliverErr
	}

	if qjob.AttemptsMade >= qjob.MaxAttempts {
		if err := w.repo.UpdateWebhookStatus(ctx, tx.ID, transaction.WebhookStatusFailed); err != nil {
			logger.Error("Failed to mark webhook delivery as failed", "error", err)
		}
		logger.Warn("Webhook delivery failed permanently", "attempts_made", qjob.AttemptsMade, "error", deliverErr)
		return deliverErr
	}

	logger.Info("Webhook delivery failed, will retry",
		"attempts_made", qjob.AttemptsMade,
		"max_attempts", qjob.MaxAttempts,
		"error", deliverErr,
	)
	return deliverErr
}

func (w *WebhookWorker) deadLetter(ctx context.Context, key string, payload []byte, reason string) {
	if w.dlq == nil {
		return
	}
	if err := w.dlq.PublishToDLQ(ctx, key, payload, reason); err != nil {
		w.logger.Error("Failed to publish job to DLQ", "key", key, "reason", reason, "error", err)
	}
}
