package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog represents a cached operation result so a retried request
// returns the original outcome instead of producing a second side effect.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "account_id:operation:client_key"
	EntryID      uuid.UUID `json:"entry_id"`
	ResponseJSON []byte    `json:"response_json"` // Cached response to return
	CreatedAt    time.Time `json:"created_at"`
}

// Operation scopes for BuildIdempotencyKey.
const (
	OpDeposit  = "DEPOSIT"
	OpWithdraw = "WITHDRAW"
	OpTransfer = "TRANSFER"
)

// BuildIdempotencyKey scopes a caller-supplied key to the acting account and
// the operation, so neither two accounts nor two different operations on the
// same account collide when they reuse a client key.
func BuildIdempotencyKey(accountID uuid.UUID, operation string, clientKey string) string {
	return accountID.String() + ":" + operation + ":" + clientKey
}

// BuildLegIdempotencyKey derives the key for one leg of a transfer from the
// scoped transfer key.
func BuildLegIdempotencyKey(transferKey string, kind EntryKind) string {
	return transferKey + ":" + string(kind)
}

// BuildReversalIdempotencyKey derives the key guarding against a second
// compensating entry for the same original.
func BuildReversalIdempotencyKey(originalEntryID uuid.UUID) string {
	return "rev:" + originalEntryID.String()
}
