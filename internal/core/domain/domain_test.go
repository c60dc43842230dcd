package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccount_IsActive(t *testing.T) {
	tests := []struct {
		name   string
		status AccountStatus
		want   bool
	}{
		{"active", AccountStatusActive, true},
		{"deactivated", AccountStatusDeactivated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{Status: tt.status}
			assert.Equal(t, tt.want, a.IsActive())
		})
	}
}

func TestAccount_Available(t *testing.T) {
	a := &Account{Balance: 10000, Reserved: 3500}
	assert.Equal(t, int64(6500), a.Available())

	a.Reserved = 0
	assert.Equal(t, int64(10000), a.Available())
}

func TestLedgerEntry_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from EntryStatus
		to   EntryStatus
		want bool
	}{
		{"pending to confirmed", EntryStatusPending, EntryStatusConfirmed, true},
		{"pending to failed", EntryStatusPending, EntryStatusFailed, true},
		{"pending to reversed", EntryStatusPending, EntryStatusReversed, false},
		{"confirmed to reversed", EntryStatusConfirmed, EntryStatusReversed, true},
		{"confirmed to failed", EntryStatusConfirmed, EntryStatusFailed, false},
		{"confirmed to confirmed", EntryStatusConfirmed, EntryStatusConfirmed, false},
		{"failed to confirmed", EntryStatusFailed, EntryStatusConfirmed, false},
		{"failed to reversed", EntryStatusFailed, EntryStatusReversed, false},
		{"reversed to anything", EntryStatusReversed, EntryStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &LedgerEntry{Status: tt.from}
			assert.Equal(t, tt.want, e.CanTransitionTo(tt.to))
		})
	}
}

func TestLedgerEntry_DebitCredit(t *testing.T) {
	assert.True(t, (&LedgerEntry{Kind: EntryKindWithdraw}).IsDebit())
	assert.True(t, (&LedgerEntry{Kind: EntryKindTransferOut}).IsDebit())
	assert.False(t, (&LedgerEntry{Kind: EntryKindDeposit}).IsDebit())

	assert.True(t, (&LedgerEntry{Kind: EntryKindDeposit}).IsCredit())
	assert.True(t, (&LedgerEntry{Kind: EntryKindTransferIn}).IsCredit())
	assert.False(t, (&LedgerEntry{Kind: EntryKindTransferOut}).IsCredit())
}

func TestLedgerEntry_IsReversible(t *testing.T) {
	now := time.Now().UTC()
	window := 72 * time.Hour
	confirmedRecently := now.Add(-time.Hour)
	confirmedLongAgo := now.Add(-100 * time.Hour)
	origID := uuid.New()

	tests := []struct {
		name  string
		entry LedgerEntry
		want  bool
	}{
		{"confirmed inside window", LedgerEntry{Status: EntryStatusConfirmed, ConfirmedAt: &confirmedRecently}, true},
		{"confirmed outside window", LedgerEntry{Status: EntryStatusConfirmed, ConfirmedAt: &confirmedLongAgo}, false},
		{"still pending", LedgerEntry{Status: EntryStatusPending}, false},
		{"already failed", LedgerEntry{Status: EntryStatusFailed}, false},
		{"compensating entry", LedgerEntry{Status: EntryStatusConfirmed, ConfirmedAt: &confirmedRecently, OriginalEntryID: &origID}, false},
		{"missing confirmation time", LedgerEntry{Status: EntryStatusConfirmed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.IsReversible(window, now))
		})
	}
}

func TestLedgerEntry_CompensatingKind(t *testing.T) {
	tests := []struct {
		kind EntryKind
		want EntryKind
	}{
		{EntryKindDeposit, EntryKindWithdraw},
		{EntryKindWithdraw, EntryKindDeposit},
		{EntryKindTransferOut, EntryKindTransferIn},
		{EntryKindTransferIn, EntryKindTransferOut},
	}

	for _, tt := range tests {
		e := &LedgerEntry{Kind: tt.kind}
		assert.Equal(t, tt.want, e.CompensatingKind())
	}
}

func TestLedgerEntry_ValidateShape(t *testing.T) {
	src := uuid.New()
	dst := uuid.New()

	tests := []struct {
		name    string
		entry   LedgerEntry
		wantErr bool
	}{
		{"valid deposit", LedgerEntry{Kind: EntryKindDeposit, DestAccount: &dst, Amount: 100, IdempotencyKey: "k1"}, false},
		{"valid withdrawal", LedgerEntry{Kind: EntryKindWithdraw, SourceAccount: &src, Amount: 100, IdempotencyKey: "k2"}, false},
		{"valid transfer legs", LedgerEntry{Kind: EntryKindTransferOut, SourceAccount: &src, DestAccount: &dst, Amount: 100, IdempotencyKey: "k3"}, false},
		{"zero amount", LedgerEntry{Kind: EntryKindDeposit, DestAccount: &dst, Amount: 0, IdempotencyKey: "k4"}, true},
		{"negative amount", LedgerEntry{Kind: EntryKindWithdraw, SourceAccount: &src, Amount: -5, IdempotencyKey: "k5"}, true},
		{"deposit with source", LedgerEntry{Kind: EntryKindDeposit, SourceAccount: &src, DestAccount: &dst, Amount: 100, IdempotencyKey: "k6"}, true},
		{"deposit without destination", LedgerEntry{Kind: EntryKindDeposit, Amount: 100, IdempotencyKey: "k7"}, true},
		{"withdrawal with destination", LedgerEntry{Kind: EntryKindWithdraw, SourceAccount: &src, DestAccount: &dst, Amount: 100, IdempotencyKey: "k8"}, true},
		{"transfer_out without source", LedgerEntry{Kind: EntryKindTransferOut, DestAccount: &dst, Amount: 100, IdempotencyKey: "k9"}, true},
		{"transfer_in without destination", LedgerEntry{Kind: EntryKindTransferIn, SourceAccount: &src, Amount: 100, IdempotencyKey: "k10"}, true},
		{"missing idempotency key", LedgerEntry{Kind: EntryKindDeposit, DestAccount: &dst, Amount: 100}, true},
		{"unknown kind", LedgerEntry{Kind: EntryKind("BONUS"), DestAccount: &dst, Amount: 100, IdempotencyKey: "k11"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := tt.entry.ValidateShape()
			if tt.wantErr {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestBuildIdempotencyKey(t *testing.T) {
	accountID := uuid.New()
	key := BuildIdempotencyKey(accountID, OpDeposit, "client-key-1")
	assert.Equal(t, accountID.String()+":DEPOSIT:client-key-1", key)

	legKey := BuildLegIdempotencyKey(key, EntryKindTransferOut)
	assert.Equal(t, key+":TRANSFER_OUT", legKey)
}

func TestBuildIdempotencyKey_ScopedPerOperation(t *testing.T) {
	accountID := uuid.New()

	// The same client key on different operations must never replay each
	// other's cached result.
	depKey := BuildIdempotencyKey(accountID, OpDeposit, "shared-key")
	wdKey := BuildIdempotencyKey(accountID, OpWithdraw, "shared-key")
	trKey := BuildIdempotencyKey(accountID, OpTransfer, "shared-key")
	assert.NotEqual(t, depKey, wdKey)
	assert.NotEqual(t, depKey, trKey)
	assert.NotEqual(t, wdKey, trKey)

	// And different accounts stay isolated as before.
	assert.NotEqual(t, depKey, BuildIdempotencyKey(uuid.New(), OpDeposit, "shared-key"))
}
