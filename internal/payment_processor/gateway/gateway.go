// Package gateway simulates an external payment gateway. The simulator
// draws a weighted random outcome and sleeps for the configured latency, so
// worker behavior under slow or failing gateways is exercised for real.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/payflow-orchestrator/internal/config"
	"github.com/payflow-orchestrator/internal/domain/transaction"
)

// Charge failure modes. Timeouts are transient and worth retrying; hard
// failures are declines the gateway will repeat.
var (
	ErrGatewayTimeout     = errors.New("gateway timed out")
	ErrGatewayHardFailure = errors.New("gateway declined the charge")
)

// Outcome is a single simulated gateway result
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeHardFailure
)

// OutcomeSource draws the next simulated outcome. Tests substitute a
// deterministic source.
type OutcomeSource interface {
	Next() Outcome
}

// weightedSource draws outcomes with the configured percentages
type weightedSource struct {
	successPercent int
	timeoutPercent int
}

func (s *weightedSource) Next() Outcome {
	roll := rand.IntN(100)
	switch {
	case roll < s.successPercent:
		return OutcomeSuccess
	case roll < s.successPercent+s.timeoutPercent:
		return OutcomeTimeout
	default:
		return OutcomeHardFailure
	}
}

// Charger executes charges against the payment gateway
type Charger interface {
	Charge(ctx context.Context, tx *transaction.Transaction) (*transaction.GatewayResponse, error)
}

// Simulator is a stand-in payment gateway with configurable failure rates
type Simulator struct {
	source  OutcomeSource
	latency time.Duration
	logger  *slog.Logger
}

// NewSimulator creates a simulator with the configured outcome distribution
func NewSimulator(logger *slog.Logger, cfg *config.GatewayConfig) *Simulator {
	return &Simulator{
		source: &weightedSource{
			successPercent: cfg.SuccessPercent,
			timeoutPercent: cfg.TimeoutPercent,
		},
		latency: cfg.Latency,
		logger:  logger,
	}
}

// NewSimulatorWithSource creates a simulator over an explicit outcome source
func NewSimulatorWithSource(logger *slog.Logger, source OutcomeSource, latency time.Duration) *Simulator {
	return &Simulator{
		source:  source,
		latency: latency,
		logger:  logger,
	}
}

// Charge simulates one gateway call. The latency sleep respects ctx so a
// shutting-down worker is not held hostage by a slow gateway.
func (s *Simulator) Charge(ctx context.Context, tx *transaction.Transaction) (*transaction.GatewayResponse, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	switch outcome := s.source.Next(); outcome {
	case OutcomeSuccess:
		s.logger.Debug("Gateway charge succeeded", "transaction_id", tx.ID.String(), "amount", tx.Amount)
		return &transaction.GatewayResponse{
			Status:    "SUCCESS",
			Final:     true,
			Simulated: true,
		}, nil

	case OutcomeTimeout:
		s.logger.Debug("Gateway charge timed out", "transaction_id", tx.ID.String())
		return &transaction.GatewayResponse{
			Status:    "TIMEOUT",
			Error:     ErrGatewayTimeout.Error(),
			Simulated: true,
		}, ErrGatewayTimeout

	default:
		s.logger.Debug("Gateway declined charge", "transaction_id", tx.ID.String())
		return &transaction.GatewayResponse{
			Status:    "HARD_FAILURE",
			Error:     ErrGatewayHardFailure.Error(),
			Simulated: true,
		}, ErrGatewayHardFailure
	}
}

var _ Charger = (*Simulator)(nil)
