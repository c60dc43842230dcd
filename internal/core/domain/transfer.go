package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferStatus tracks the composite state of an inter-country transfer.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
)

// TransferIntent links the two legs of an inter-country transfer under one
// correlation id. Both legs commit or both unwind — the intent row is how
// the orchestrator finds the sibling leg when an outcome arrives.
type TransferIntent struct {
	CorrelationID uuid.UUID      `json:"correlation_id"`
	OutEntryID    uuid.UUID      `json:"out_entry_id"`
	InEntryID     uuid.UUID      `json:"in_entry_id"`
	FromAccount   uuid.UUID      `json:"from_account"`
	ToAccount     uuid.UUID      `json:"to_account"`
	Amount        int64          `json:"amount"` // Minor units
	Status        TransferStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}
