// Package mongo provides the MongoDB implementation of the processing
// attempt audit log.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/payflow-orchestrator/internal/domain/attempt"
)

const (
	// AttemptCollectionName is the name of the processing attempt collection
	AttemptCollectionName = "processing_attempts"
)

// AttemptRepository implements the attempt.Repository interface for MongoDB
type AttemptRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAttemptRepository creates a new MongoDB attempt repository
func NewAttemptRepository(logger *slog.Logger, db *mongo.Database) attempt.Repository {
	return &AttemptRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one processing attempt to the audit log. The log is
// append-only; records are never updated or removed.
func (r *AttemptRepository) Record(ctx context.Context, record *attempt.Record) error {
	collection := r.db.Collection(AttemptCollectionName)

	_, err := collection.InsertOne(ctx, record)
	if err != nil {
		r.logger.Error("Failed to record processing attempt",
			"transaction_id", record.TransactionID.String(),
			"attempt", record.Attempt,
			"error", err)
		return fmt.Errorf("failed to record processing attempt: %w", err)
	}

	return nil
}

// GetByTransactionID retrieves all recorded attempts for a transaction in
// the order they were made
func (r *AttemptRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*attempt.Record, error) {
	collection := r.db.Collection(AttemptCollectionName)

	filter := bson.M{"transaction_id": transactionID}
	opts := options.Find().SetSort(bson.M{"attempt": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get processing attempts",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get processing attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*attempt.Record
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode processing attempts",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode processing attempts: %w", err)
	}

	return records, nil
}
