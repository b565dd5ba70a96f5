package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/payflow-orchestrator/internal/domain/job"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/payment_processor/notifier"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

func webhookJobFor(t *testing.T, tx *transaction.Transaction, attemptsMade, maxAttempts int) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(job.WebhookJob{TransactionID: tx.ID})
	require.NoError(t, err)
	return &queue.Job{ID: "wh-job-1", Payload: payload, AttemptsMade: attemptsMade, MaxAttempts: maxAttempts}
}

func TestWebhookWorker_SuccessfulDelivery(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	n := new(MockNotifier)
	worker := NewWebhookWorker(newTestLogger(), repo, n, nil)

	tx := withStatus(t, transaction.StatusSuccess, 0)
	repo.On("GetByID", ctx, tx.ID).Return(tx, nil).Once()
	n.On("Deliver", ctx, tx).Return(nil).Once()
	repo.On("UpdateWebhookStatus", ctx, tx.ID, transaction.WebhookStatusSuccess).Return(nil).Once()

	err := worker.Handle(ctx, webhookJobFor(t, tx, 1, 5))
	assert.NoError(t, err)
	repo.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestWebhookWorker_FailureKeepsPendingUntilExhausted(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	n := new(MockNotifier)
	worker := NewWebhookWorker(newTestLogger(), repo, n, nil)

	tx := withStatus(t, transaction.StatusFailed, 3)
	repo.On("GetByID", ctx, tx.ID).Return(tx, nil).Once()
	n.On("Deliver", ctx, tx).Return(notifier.ErrDeliveryFailed).Once()

	err := worker.Handle(ctx, webhookJobFor(t, tx, 2, 5))
	assert.ErrorIs(t, err, notifier.ErrDeliveryFailed)

	// The webhook status stays PENDING while retries remain
	repo.AssertNotCalled(t, "UpdateWebhookStatus", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestWebhookWorker_FinalFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	n := new(MockNotifier)
	worker := NewWebhookWorker(newTestLogger(), repo, n, nil)

	tx := withStatus(t, transaction.StatusSuccess, 0)
	repo.On("GetByID", ctx, tx.ID).Return(tx, nil).Once()
	n.On("Deliver", ctx, tx).Return(notifier.ErrDeliveryFailed).Once()
	repo.On("UpdateWebhookStatus", ctx, tx.ID, transaction.WebhookStatusFailed).Return(nil).Once()

	err := worker.Handle(ctx, webhookJobFor(t, tx, 5, 5))
	assert.ErrorIs(t, err, notifier.ErrDeliveryFailed)
	repo.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestWebhookWorker_UnknownTransactionIsPermanent(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	n := new(MockNotifier)
	dlq := new(MockDeadLetterPublisher)
	worker := NewWebhookWorker(newTestLogger(), repo, n, dlq)

	tx := withStatus(t, transaction.StatusSuccess, 0)
	notFound := transaction.ErrTransactionNotFound{ID: tx.ID}
	repo.On("GetByID", ctx, tx.ID).Return(nil, notFound).Once()
	dlq.On("PublishToDLQ", ctx, tx.ID.String(), mock.Anything, "transaction not found").Return(nil).Once()

	err := worker.Handle(ctx, webhookJobFor(t, tx, 1, 5))
	assert.ErrorIs(t, err, queue.ErrPermanent)
	n.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	dlq.AssertExpectations(t)
}

func TestWebhookWorker_PoisonPayloadGoesToDLQ(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	n := new(MockNotifier)
	dlq := new(MockDeadLetterPublisher)
	worker := NewWebhookWorker(newTestLogger(), repo, n, dlq)

	dlq.On("PublishToDLQ", ctx, "wh-job-1", []byte("{{"), "undecodable webhook job payload").Return(nil).Once()

	err := worker.Handle(ctx, &queue.Job{ID: "wh-job-1", Payload: []byte("{{"), AttemptsMade: 1, MaxAttempts: 5})
	assert.ErrorIs(t, err, queue.ErrPermanent)
	dlq.AssertExpectations(t)
}
