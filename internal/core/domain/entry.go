package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind represents the kind of money movement a ledger entry records.
type EntryKind string

const (
	EntryKindDeposit     EntryKind = "DEPOSIT"
	EntryKindWithdraw    EntryKind = "WITHDRAW"
	EntryKindTransferOut EntryKind = "TRANSFER_OUT"
	EntryKindTransferIn  EntryKind = "TRANSFER_IN"
)

// EntryStatus represents the lifecycle state of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusConfirmed EntryStatus = "CONFIRMED"
	EntryStatusFailed    EntryStatus = "FAILED"
	EntryStatusReversed  EntryStatus = "REVERSED"
)

// LedgerEntry is one immutable record in the append-only transaction ledger.
// Only Status, ConfirmedAt, ExternalRef and FailureReason move after insert,
// and Status only along the transitions CanTransitionTo allows.
type LedgerEntry struct {
	ID              uuid.UUID   `json:"id"`
	Kind            EntryKind   `json:"kind"`
	SourceAccount   *uuid.UUID  `json:"source_account,omitempty"`      // nil for deposits
	DestAccount     *uuid.UUID  `json:"destination_account,omitempty"` // nil for withdrawals
	Amount          int64       `json:"amount"`                        // Positive, minor units
	Status          EntryStatus `json:"status"`
	IdempotencyKey  string      `json:"idempotency_key"`
	CorrelationID   *uuid.UUID  `json:"correlation_id,omitempty"`    // Shared by the two legs of a transfer
	OriginalEntryID *uuid.UUID  `json:"original_entry_id,omitempty"` // Set on compensating entries
	ExternalRef     *string     `json:"external_ref,omitempty"`      // Operator confirmation reference
	FailureReason   *string     `json:"failure_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	ConfirmedAt     *time.Time  `json:"confirmed_at,omitempty"`
}

// CanTransitionTo reports whether the entry status machine permits moving
// from the current status to next: PENDING -> {CONFIRMED, FAILED},
// CONFIRMED -> REVERSED. Everything else is rejected.
func (e *LedgerEntry) CanTransitionTo(next EntryStatus) bool {
	switch e.Status {
	case EntryStatusPending:
		return next == EntryStatusConfirmed || next == EntryStatusFailed
	case EntryStatusConfirmed:
		return next == EntryStatusReversed
	default:
		return false
	}
}

// IsTerminal returns true once no further transition except reversal exists.
func (e *LedgerEntry) IsTerminal() bool {
	return e.Status != EntryStatusPending
}

// IsDebit returns true for kinds that move money out of the source account
// and therefore hold a reservation while pending.
func (e *LedgerEntry) IsDebit() bool {
	return e.Kind == EntryKindWithdraw || e.Kind == EntryKindTransferOut
}

// IsCredit returns true for kinds that move money into the destination
// account on confirmation.
func (e *LedgerEntry) IsCredit() bool {
	return e.Kind == EntryKindDeposit || e.Kind == EntryKindTransferIn
}

// BelongsTo reports whether the account is a party to this entry.
func (e *LedgerEntry) BelongsTo(accountID uuid.UUID) bool {
	if e.SourceAccount != nil && *e.SourceAccount == accountID {
		return true
	}
	return e.DestAccount != nil && *e.DestAccount == accountID
}

// IsReversible reports whether a reversal may be appended: only confirmed
// entries inside the window, and never compensating entries themselves.
func (e *LedgerEntry) IsReversible(window time.Duration, now time.Time) bool {
	if e.Status != EntryStatusConfirmed || e.OriginalEntryID != nil {
		return false
	}
	if e.ConfirmedAt == nil {
		return false
	}
	return now.Sub(*e.ConfirmedAt) <= window
}

// CompensatingKind returns the entry kind that reverses this entry's balance
// effect: a confirmed credit is undone by a debit on the same account and
// vice versa.
func (e *LedgerEntry) CompensatingKind() EntryKind {
	switch e.Kind {
	case EntryKindDeposit:
		return EntryKindWithdraw
	case EntryKindWithdraw:
		return EntryKindDeposit
	case EntryKindTransferOut:
		return EntryKindTransferIn
	default:
		return EntryKindTransferOut
	}
}

// ValidateShape checks the structural invariants that hold for every entry
// regardless of state: positive amount and the kind/account combination.
func (e *LedgerEntry) ValidateShape() string {
	if e.Amount <= 0 {
		return "amount must be positive"
	}
	switch e.Kind {
	case EntryKindDeposit:
		if e.DestAccount == nil {
			return "deposit requires a destination account"
		}
		if e.SourceAccount != nil {
			return "deposit must not carry a source account"
		}
	case EntryKindWithdraw:
		if e.SourceAccount == nil {
			return "withdrawal requires a source account"
		}
		if e.DestAccount != nil {
			return "withdrawal must not carry a destination account"
		}
	case EntryKindTransferOut:
		if e.SourceAccount == nil {
			return "transfer_out requires a source account"
		}
	case EntryKindTransferIn:
		if e.DestAccount == nil {
			return "transfer_in requires a destination account"
		}
	default:
		return "unknown entry kind"
	}
	if e.IdempotencyKey == "" {
		return "idempotency key is required"
	}
	return ""
}
