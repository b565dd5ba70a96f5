// Package statemachine enforces the transaction lifecycle. Every status
// change flows through Transition, which validates the edge before handing
// the write to the store's compare-and-swap update.
package statemachine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/domain/transaction"
)

// transitions is the complete set of legal lifecycle edges. Anything not
// listed here is rejected before touching storage.
var transitions = map[transaction.Status][]transaction.Status{
	transaction.StatusCreated:    {transaction.StatusProcessing},
	transaction.StatusProcessing: {transaction.StatusSuccess, transaction.StatusFailed, transaction.StatusRetrying},
	transaction.StatusRetrying:   {transaction.StatusProcessing},
	transaction.StatusSuccess:    {},
	transaction.StatusFailed:     {},
}

// ErrInvalidTransition indicates a lifecycle edge that does not exist
type ErrInvalidTransition struct {
	From transaction.Status
	To   transaction.Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e ErrInvalidTransition) Is(target error) bool {
	t, ok := target.(ErrInvalidTransition)
	if !ok {
		return false
	}
	return t.From == e.From && t.To == e.To
}

// StateMachine validates and applies lifecycle transitions
type StateMachine struct {
	repo   transaction.Repository
	logger *slog.Logger
}

// New creates a state machine over the given transaction store
func New(logger *slog.Logger, repo transaction.Repository) *StateMachine {
	return &StateMachine{
		repo:   repo,
		logger: logger,
	}
}

// Allowed reports whether the edge from -> to exists in the lifecycle
func Allowed(from, to transaction.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves a transaction from the expected status to the next one,
// optionally applying extra field updates in the same write. The store
// update is conditional on the expected status, so a concurrent transition
// surfaces as transaction.ErrStaleState and nothing is written.
func (m *StateMachine) Transition(ctx context.Context, id uuid.UUID, from, to transaction.Status, fields *transaction.UpdateFields) (*transaction.Transaction, error) {
	if !Allowed(from, to) {
		m.logger.Warn("Rejected lifecycle transition",
			"transaction_id", id.String(),
			"from", string(from),
			"to", string(to),
		)
		return nil, ErrInvalidTransition{From: from, To: to}
	}

	tx, err := m.repo.UpdateStatusIf(ctx, id, from, to, fields)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Transaction transitioned",
		"transaction_id", id.String(),
		"from", string(from),
		"to", string(to),
	)
	return tx, nil
}
