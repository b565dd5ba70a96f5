package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/payflow-orchestrator/internal/domain/attempt"
	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/payment_processor/gateway"
	"github.com/payflow-orchestrator/internal/payment_processor/notifier"
	"github.com/payflow-orchestrator/internal/platform/locking"
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

// MockTransitionApplier mocks TransitionApplier
type MockTransitionApplier struct {
	mock.Mock
}

func (m *MockTransitionApplier) Transition(ctx context.Context, id uuid.UUID, from, to transaction.Status, fields *transaction.UpdateFields) (*transaction.Transaction, error) {
	args := m.Called(ctx, id, from, to, fields)
	if tx := args.Get(0); tx != nil {
		return tx.(*transaction.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ TransitionApplier = (*MockTransitionApplier)(nil)

// MockLockService mocks locking.LockService
type MockLockService struct {
	mock.Mock
}

func (m *MockLockService) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockService) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var _ locking.LockService = (*MockLockService)(nil)

// MockCharger mocks gateway.Charger
type MockCharger struct {
	mock.Mock
}

func (m *MockCharger) Charge(ctx context.Context, tx *transaction.Transaction) (*transaction.GatewayResponse, error) {
	args := m.Called(ctx, tx)
	if resp := args.Get(0); resp != nil {
		return resp.(*transaction.GatewayResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ gateway.Charger = (*MockCharger)(nil)

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

// MockDeadLetterPublisher mocks DeadLetterPublisher
type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	args := m.Called(ctx, key, originalMessageValue, reason)
	return args.Error(0)
}

var _ DeadLetterPublisher = (*MockDeadLetterPublisher)(nil)

// MockNotifier mocks notifier.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(ctx context.Context, tx *transaction.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

var _ notifier.Notifier = (*MockNotifier)(nil)
