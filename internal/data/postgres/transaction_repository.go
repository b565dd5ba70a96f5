// Package postgres provides the PostgreSQL implementation of the transaction
// repository. All status mutations are single conditional statements so the
// store itself serializes concurrent transitions.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/payflow-orchestrator/internal/domain/transaction"
	"github.com/payflow-orchestrator/internal/platform/persistence"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures
const uniqueViolation = "23505"

const transactionColumns = `id, idempotency_key, user_id, amount, currency, payment_method,
		status, retry_count, max_retries, gateway_response, webhook_status, created_at, updated_at`

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Create atomically inserts a new transaction. The unique index on
// idempotency_key is the single point where duplicate submissions are
// detected; a violation maps to ErrDuplicateIdempotencyKey.
func (r *TransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (id, idempotency_key, user_id, amount, currency, payment_method,
			status, retry_count, max_retries, gateway_response, webhook_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	gatewayResponse, err := marshalGatewayResponse(tx.GatewayResponse)
	if err != nil {
		return err
	}

	_, err = r.querier.Exec(ctx, query,
		tx.ID,
		tx.IdempotencyKey,
		tx.UserID,
		tx.Amount,
		tx.Currency,
		tx.PaymentMethod,
		tx.Status,
		tx.RetryCount,
		tx.MaxRetries,
		gatewayResponse,
		tx.WebhookStatus,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return transaction.ErrDuplicateIdempotencyKey{Key: tx.IdempotencyKey}
		}
		r.logger.Error("Failed to create transaction", "id", tx.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1
	`

	tx, err := r.scanRow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key.
// Returns nil, nil when no transaction exists for the key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE idempotency_key = $1
	`

	tx, err := r.scanRow(r.querier.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction by idempotency key", "idempotency_key", key, "error", err)
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}

	return tx, nil
}

// UpdateStatusIf applies the status change and extra fields in one
// conditional statement. The write only commits if the stored status still
// equals expected; otherwise ErrStaleState is returned and nothing changed.
func (r *TransactionRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next transaction.Status, fields *transaction.UpdateFields) (*transaction.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $3,
			retry_count = COALESCE($4, retry_count),
			gateway_response = COALESCE($5, gateway_response),
			webhook_status = COALESCE($6, webhook_status),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + transactionColumns

	var retryCount *int
	var webhookStatus *transaction.WebhookStatus
	var gatewayResponse []byte
	if fields != nil {
		retryCount = fields.RetryCount
		webhookStatus = fields.WebhookStatus
		var err error
		gatewayResponse, err = marshalGatewayResponse(fields.GatewayResponse)
		if err != nil {
			return nil, err
		}
	}

	tx, err := r.scanRow(r.querier.QueryRow(ctx, query, id, expected, next, retryCount, gatewayResponse, webhookStatus))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrStaleState{ID: id, Expected: expected}
		}
		r.logger.Error("Failed to update transaction status",
			"id", id.String(),
			"expected", string(expected),
			"next", string(next),
			"error", err,
		)
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	return tx, nil
}

// UpdateWebhookStatus overwrites the webhook delivery outcome. Deliberately
// unconditional: duplicate notification deliveries overwrite idempotently.
func (r *TransactionRepository) UpdateWebhookStatus(ctx context.Context, id uuid.UUID, status transaction.WebhookStatus) error {
	query := `
		UPDATE transactions
		SET webhook_status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id, status)
	if err != nil {
		r.logger.Error("Failed to update webhook status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update webhook status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: id}
	}

	return nil
}

// ResetForRetry conditionally moves a FAILED transaction back to CREATED.
// The WHERE clause guards against a concurrent retry racing the reset.
func (r *TransactionRepository) ResetForRetry(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $2, retry_count = 0, gateway_response = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + transactionColumns

	tx, err := r.scanRow(r.querier.QueryRow(ctx, query, id, transaction.StatusCreated, transaction.StatusFailed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrStaleState{ID: id, Expected: transaction.StatusFailed}
		}
		r.logger.Error("Failed to reset transaction for retry", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to reset transaction for retry: %w", err)
	}

	return tx, nil
}

// List retrieves transactions matching the filter, newest first
func (r *TransactionRepository) List(ctx context.Context, filter transaction.Filter, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions` + filterClause(filter) + `
		ORDER BY created_at DESC
		LIMIT $` + strconv.Itoa(len(filterArgs(filter))+1) + ` OFFSET $` + strconv.Itoa(len(filterArgs(filter))+2)

	args := append(filterArgs(filter), limit, offset)

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		tx, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}

	return transactions, nil
}

// Count returns the number of transactions matching the filter
func (r *TransactionRepository) Count(ctx context.Context, filter transaction.Filter) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions` + filterClause(filter)

	var total int64
	if err := r.querier.QueryRow(ctx, query, filterArgs(filter)...).Scan(&total); err != nil {
		r.logger.Error("Failed to count transactions", "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return total, nil
}

// AggregateMetrics derives the read-only dashboard aggregates from the store
func (r *TransactionRepository) AggregateMetrics(ctx context.Context) (*transaction.Metrics, error) {
	metrics := &transaction.Metrics{
		StatusCounts:              make(map[transaction.Status]int64),
		PaymentMethodDistribution: make(map[transaction.PaymentMethod]int64),
	}

	statsQuery := `SELECT COUNT(*), COALESCE(AVG(retry_count), 0) FROM transactions`
	if err := r.querier.QueryRow(ctx, statsQuery).Scan(&metrics.TotalTransactions, &metrics.AvgRetryCount); err != nil {
		r.logger.Error("Failed to aggregate transaction stats", "error", err)
		return nil, fmt.Errorf("failed to aggregate transaction stats: %w", err)
	}

	statusQuery := `SELECT status, COUNT(*) FROM transactions GROUP BY status`
	statusRows, err := r.querier.Query(ctx, statusQuery)
	if err != nil {
		r.logger.Error("Failed to aggregate status counts", "error", err)
		return nil, fmt.Errorf("failed to aggregate status counts: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status transaction.Status
		var count int64
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count row: %w", err)
		}
		metrics.StatusCounts[status] = count
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status count rows: %w", err)
	}

	methodQuery := `SELECT payment_method, COUNT(*) FROM transactions GROUP BY payment_method`
	methodRows, err := r.querier.Query(ctx, methodQuery)
	if err != nil {
		r.logger.Error("Failed to aggregate payment method distribution", "error", err)
		return nil, fmt.Errorf("failed to aggregate payment method distribution: %w", err)
	}
	defer methodRows.Close()
	for methodRows.Next() {
		var method transaction.PaymentMethod
		var count int64
		if err := methodRows.Scan(&method, &count); err != nil {
			return nil, fmt.Errorf("failed to scan payment method row: %w", err)
		}
		metrics.PaymentMethodDistribution[method] = count
	}
	if err := methodRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment method rows: %w", err)
	}

	if metrics.TotalTransactions > 0 {
		total := float64(metrics.TotalTransactions)
		metrics.SuccessRate = float64(metrics.StatusCounts[transaction.StatusSuccess]) / total * 100
		metrics.FailureRate = float64(metrics.StatusCounts[transaction.StatusFailed]) / total * 100
	}

	return metrics, nil
}

// scanRow maps one row onto a Transaction, decoding the JSONB payload
func (r *TransactionRepository) scanRow(row pgx.Row) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var gatewayResponse []byte

	err := row.Scan(
		&tx.ID,
		&tx.IdempotencyKey,
		&tx.UserID,
		&tx.Amount,
		&tx.Currency,
		&tx.PaymentMethod,
		&tx.Status,
		&tx.RetryCount,
		&tx.MaxRetries,
		&gatewayResponse,
		&tx.WebhookStatus,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(gatewayResponse) > 0 {
		var resp transaction.GatewayResponse
		if err := json.Unmarshal(gatewayResponse, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode gateway response payload: %w", err)
		}
		tx.GatewayResponse = &resp
	}

	return &tx, nil
}

func marshalGatewayResponse(resp *transaction.GatewayResponse) ([]byte, error) {
	if resp == nil {
		return nil, nil
	}
	value, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway response payload: %w", err)
	}
	return value, nil
}

func filterClause(filter transaction.Filter) string {
	clause := ""
	idx := 1
	if filter.Status != nil {
		clause = " WHERE status = $" + strconv.Itoa(idx)
		idx++
	}
	if filter.UserID != "" {
		if clause == "" {
			clause = " WHERE user_id = $" + strconv.Itoa(idx)
		} else {
			clause += " AND user_id = $" + strconv.Itoa(idx)
		}
	}
	return clause
}

func filterArgs(filter transaction.Filter) []interface{} {
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
	}
	return args
}
