package domain

import "github.com/google/uuid"

// ConfirmationOutcome is the operator's verdict on a pending entry.
type ConfirmationOutcome string

const (
	ConfirmationOutcomeConfirmed ConfirmationOutcome = "confirmed"
	ConfirmationOutcomeFailed    ConfirmationOutcome = "failed"
)

// ConfirmationEvent is one event from a mobile-money operator's
// confirmation feed. Events may arrive out of order, duplicated, or after
// the entry has already timed out; the ledger state machine absorbs all of
// those cases.
type ConfirmationEvent struct {
	EntryID     uuid.UUID           `json:"transaction_id"`
	ExternalRef string              `json:"external_ref"` // Operator-side reference
	Outcome     ConfirmationOutcome `json:"outcome"`
	Reason      string              `json:"reason,omitempty"` // Operator reason on failure
}
