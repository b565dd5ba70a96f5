package job

import (
	"github.com/google/uuid"

	"github.com/payflow-orchestrator/internal/domain/transaction"
)

// PaymentJob is the payload carried by the payments queue. It deliberately
// holds only the transaction id and the status observed at enqueue time; the
// worker always re-reads the store before acting.
type PaymentJob struct {
	TransactionID uuid.UUID          `json:"transaction_id"`
	Status        transaction.Status `json:"status"`
}

// WebhookJob is the payload carried by the webhooks queue. Only the payment
// worker's success path produces one.
type WebhookJob struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}
