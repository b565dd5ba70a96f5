// Package notifier simulates delivering webhook notifications to an
// external merchant endpoint.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/payflow-orchestrator/internal/config"
	"github.com/payflow-orchestrator/internal/domain/transaction"
)

// ErrDeliveryFailed indicates the simulated endpoint rejected the notification
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Notifier delivers a terminal-state notification for a transaction
type Notifier interface {
	Deliver(ctx context.Context, tx *transaction.Transaction) error
}

// Simulator is a stand-in webhook endpoint with a configurable failure rate
type Simulator struct {
	shouldFail func() bool
	delay      time.Duration
	logger     *slog.Logger
}

// NewSimulator creates a simulator with the configured failure percentage
func NewSimulator(logger *slog.Logger, cfg *config.WebhookConfig) *Simulator {
	failurePercent := cfg.FailurePercent
	return &Simulator{
		shouldFail: func() bool { return rand.IntN(100) < failurePercent },
		delay:      cfg.Delay,
		logger:     logger,
	}
}

// NewSimulatorWithSource creates a simulator over an explicit failure source
func NewSimulatorWithSource(logger *slog.Logger, shouldFail func() bool, delay time.Duration) *Simulator {
	return &Simulator{
		shouldFail: shouldFail,
		delay:      delay,
		logger:     logger,
	}
}

// Deliver simulates one notification delivery. The network delay respects
// ctx so shutdown is not blocked on a slow endpoint.
func (s *Simulator) Deliver(ctx context.Context, tx *transaction.Transaction) error {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.shouldFail() {
		s.logger.Debug("Webhook delivery failed", "transaction_id", tx.ID.String(), "status", string(tx.Status))
		return ErrDeliveryFailed
	}

	s.logger.Debug("Webhook delivered", "transaction_id", tx.ID.String(), "status", string(tx.Status))
	return nil
}

var _ Notifier = (*Simulator)(nil)
