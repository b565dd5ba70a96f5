package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/payflow-orchestrator/internal/domain/attempt"
	"github.com/payflow-orchestrator/internal/domain/job"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// MockRepository mocks transaction.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if tx := args.Get(0); tx != nil {
		return tx.(*transaction.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	args := m.Called(ctx, key)
	if tx := args.Get(0); tx != nil {
		return tx.(*transaction.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next transaction.Status, fields *transaction.UpdateFields) (*transaction.Transaction, error) {
	args := m.Called(ctx, id, expected, next, fields)
	if tx := args.Get(0); tx != nil {
		return tx.(*transaction.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdateWebhookStatus(ctx context.Context, id uuid.UUID, status transaction.WebhookStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepository) ResetForRetry(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if tx := args.Get(0); tx != nil {
		return tx.(*transaction.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, filter transaction.Filter, limit, offset int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, filter, limit, offset)
	if txs := args.Get(0); txs != nil {
		return txs.([]*transaction.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) Count(ctx context.Context, filter transaction.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) AggregateMetrics(ctx context.Context) (*transaction.Metrics, error) {
	args := m.Called(ctx)
	if metrics := args.Get(0); metrics != nil {
		return metrics.(*transaction.Metrics), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ transaction.Repository = (*MockRepository)(nil)

// MockAttemptRepository mocks attempt.Repository
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Record(ctx context.Context, record *attempt.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*attempt.Record, error) {
	args := m.Called(ctx, transactionID)
	if records := args.Get(0); records != nil {
		return records.([]*attempt.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ attempt.Repository = (*MockAttemptRepository)(nil)

// MockJobEnqueuer mocks JobEnqueuer
type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) Enqueue(ctx context.Context, payload interface{}, opts queue.JobOptions) (string, error) {
	args := m.Called(ctx, payload, opts)
	return args.String(0), args.Error(1)
}

var _ JobEnqueuer = (*MockJobEnqueuer)(nil)

// MockEventPublisher mocks EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

var _ EventPublisher = (*MockEventPublisher)(nil)

func newTestTransaction(t *testing.T) *transaction.Transaction {
	t.Helper()
	tx, err := transaction.New("user-1", 5000, "USD", transaction.PaymentMethodCard, "idem-1")
	require.NoError(t, err)
	return tx
}

func TestPaymentService_SubmitPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and schedules exactly one job", func(t *testing.T) {
		repo := new(MockRepository)
		enqueuer := new(MockJobEnqueuer)
		events := new(MockEventPublisher)
		svc := NewPaymentService(newTestLogger(), repo, nil, enqueuer, events)

		tx := newTestTransaction(t)
		repo.On("Create", ctx, tx).Return(nil).Once()
		enqueuer.On("Enqueue", ctx,
			job.PaymentJob{TransactionID: tx.ID, Status: transaction.StatusCreated},
			queue.JobOptions{MaxAttempts: tx.MaxRetries},
		).Return("job-1", nil).Once()
		events.On("Publish", ctx, tx.ID.String(), mock.Anything).Return(nil).Once()

		result, created, err := svc.SubmitPayment(ctx, tx)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, tx, result)
		repo.AssertExpectations(t)
		enqueuer.AssertExpectations(t)
		events.AssertExpectations(t)
	})

	t.Run("duplicate submission returns the stored transaction", func(t *testing.T) {
		repo := new(MockRepository)
		enqueuer := new(MockJobEnqueuer)
		svc := NewPaymentService(newTestLogger(), repo, nil, enqueuer, nil)

		tx := newTestTransaction(t)
		existing := newTestTransaction(t)
		existing.Status = transaction.StatusSuccess

		repo.On("Create", ctx, tx).Return(transaction.ErrDuplicateIdempotencyKey{Key: tx.IdempotencyKey}).Once()
		repo.On("GetByIdempotencyKey", ctx, tx.IdempotencyKey).Return(existing, nil).Once()

		result, created, err := svc.SubmitPayment(ctx, tx)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing, result)

		// A replayed submission must never schedule another job
		enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("storage error propagates", func(t *testing.T) {
		repo := new(MockRepository)
		enqueuer := new(MockJobEnqueuer)
		svc := NewPaymentService(newTestLogger(), repo, nil, enqueuer, nil)

		tx := newTestTransaction(t)
		repo.On("Create", ctx, tx).Return(assert.AnError).Once()

		_, _, err := svc.SubmitPayment(ctx, tx)
		assert.ErrorIs(t, err, assert.AnError)
		enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_RetryPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("resets a failed transaction and schedules a job", func(t *testing.T) {
		repo := new(MockRepository)
		enqueuer := new(MockJobEnqueuer)
		svc := NewPaymentService(newTestLogger(), repo, nil, enqueuer, nil)

		failed := newTestTransaction(t)
		failed.Status = transaction.StatusFailed
		failed.RetryCount = 3

		reset := *failed
		reset.Status = transaction.StatusCreated
		reset.RetryCount = 0

		repo.On("GetByID", ctx, failed.ID).Return(failed, nil).Once()
		repo.On("ResetForRetry", ctx, failed.ID).Return(&reset, nil).Once()
		enqueuer.On("Enqueue", ctx,
			job.PaymentJob{TransactionID: failed.ID, Status: transaction.StatusCreated},
			queue.JobOptions{MaxAttempts: failed.MaxRetries},
		).Return("job-2", nil).Once()

		result, err := svc.RetryPayment(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusCreated, result.Status)
		assert.Equal(t, 0, result.RetryCount)
		repo.AssertExpectations(t)
		enqueuer.AssertExpectations(t)
	})

	t.Run("rejects retry of a non-failed transaction", func(t *testing.T) {
		repo := new(MockRepository)
		enqueuer := new(MockJobEnqueuer)
		svc := NewPaymentService(newTestLogger(), repo, nil, enqueuer, nil)

		tx := newTestTransaction(t)
		tx.Status = transaction.StatusSuccess
		repo.On("GetByID", ctx, tx.ID).Return(tx, nil).Once()

		_, err := svc.RetryPayment(ctx, tx.ID)
		assert.ErrorIs(t, err, transaction.ErrRetryNotAllowed{ID: tx.ID})
		repo.AssertNotCalled(t, "ResetForRetry", mock.Anything, mock.Anything)
		enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("losing the reset race maps to retry-not-allowed", func(t *testing.T) {
		repo := new(MockRepository)
		enqueuer := new(MockJobEnqueuer)
		svc := NewPaymentService(newTestLogger(), repo, nil, enqueuer, nil)

		failed := newTestTransaction(t)
		failed.Status = transaction.StatusFailed

		current := *failed
		current.Status = transaction.StatusProcessing

		repo.On("GetByID", ctx, failed.ID).Return(failed, nil).Once()
		repo.On("ResetForRetry", ctx, failed.ID).
			Return(nil, transaction.ErrStaleState{ID: failed.ID, Expected: transaction.StatusFailed}).Once()
		repo.On("GetByID", ctx, failed.ID).Return(&current, nil).Once()

		_, err := svc.RetryPayment(ctx, failed.ID)
		assert.ErrorIs(t, err, transaction.ErrRetryNotAllowed{ID: failed.ID})
		enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_ListPayments(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := NewPaymentService(newTestLogger(), repo, nil, new(MockJobEnqueuer), nil)

	status := transaction.StatusFailed
	filter := transaction.Filter{Status: &status}
	txs := []*transaction.Transaction{newTestTransaction(t)}

	repo.On("List", ctx, filter, 10, 20).Return(txs, nil).Once()
	repo.On("Count", ctx, filter).Return(int64(41), nil).Once()

	results, total, err := svc.ListPayments(ctx, filter, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, txs, results)
	assert.Equal(t, int64(41), total)
	repo.AssertExpectations(t)
}

func TestPaymentService_GetAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the audit trail", func(t *testing.T) {
		repo := new(MockRepository)
		attempts := new(MockAttemptRepository)
		svc := NewPaymentService(newTestLogger(), repo, attempts, new(MockJobEnqueuer), nil)

		tx := newTestTransaction(t)
		records := []*attempt.Record{attempt.NewRecord(tx.ID, 1, attempt.OutcomeTimeout, false)}

		repo.On("GetByID", ctx, tx.ID).Return(tx, nil).Once()
		attempts.On("GetByTransactionID", ctx, tx.ID).Return(records, nil).Once()

		result, err := svc.GetAttempts(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, records, result)
	})

	t.Run("unknown transaction fails before reading the log", func(t *testing.T) {
		repo := new(MockRepository)
		attempts := new(MockAttemptRepository)
		svc := NewPaymentService(newTestLogger(), repo, attempts, new(MockJobEnqueuer), nil)

		id := uuid.New()
		repo.On("GetByID", ctx, id).Return(nil, transaction.ErrTransactionNotFound{ID: id}).Once()

		_, err := svc.GetAttempts(ctx, id)
		assert.ErrorIs(t, err, transaction.ErrTransactionNotFound{ID: id})
		attempts.AssertNotCalled(t, "GetByTransactionID", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_GetMetrics(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepository)
	svc := NewPaymentService(newTestLogger(), repo, nil, new(MockJobEnqueuer), nil)

	metrics := &transaction.Metrics{TotalTransactions: 5, SuccessRate: 80}
	repo.On("AggregateMetrics", ctx).Return(metrics, nil).Once()

	result, err := svc.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics, result)
}
