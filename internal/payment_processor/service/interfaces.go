package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

// TransitionApplier validates and applies one lifecycle transition
type TransitionApplier interface {
	Transition(ctx context.Context, id uuid.UUID, from, to transaction.Status, fields *transaction.UpdateFields) (*transaction.Transaction, error)
}

// JobEnqueuer schedules a job for delivery. *queue.Queue satisfies it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, opts queue.JobOptions) (string, error)
}

// EventPublisher pushes lifecycle events to the event stream
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// DeadLetterPublisher captures jobs that processing gave up on
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
}
