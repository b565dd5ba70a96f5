package attempt

import (
	"context"

	"github.com/google/uuid"
)

// Repository manages the append-only processing attempt log
type Repository interface {
	Record(ctx context.Context, rec *Record) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*Record, error)
}
