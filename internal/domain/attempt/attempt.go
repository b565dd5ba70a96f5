package attempt

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies the result of a single gateway call
type Outcome string

const (
	OutcomeSuccess     Outcome = "SUCCESS"
	OutcomeTimeout     Outcome = "TIMEOUT"
	OutcomeHardFailure Outcome = "HARD_FAILURE"
)

// Record is one entry in the append-only processing audit log. The payment
// worker writes one per gateway call, best-effort.
type Record struct {
	TransactionID uuid.UUID `json:"transaction_id" bson:"transaction_id"`
	Attempt       int       `json:"attempt" bson:"attempt"` // 1-based delivery count
	Outcome       Outcome   `json:"outcome" bson:"outcome"`
	Final         bool      `json:"final" bson:"final"`
	RecordedAt    time.Time `json:"recorded_at" bson:"recorded_at"`
}

// NewRecord builds an audit record stamped with the current time
func NewRecord(transactionID uuid.UUID, attemptNum int, outcome Outcome, final bool) *Record {
	return &Record{
		TransactionID: transactionID,
		Attempt:       attemptNum,
		Outcome:       outcome,
		Final:         final,
		RecordedAt:    time.Now(),
	}
}
