package ports

import (
	"context"
	"time"

	"stellarpay-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic per-account locking.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByMSISDN(ctx context.Context, msisdn string) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance, reserved int64) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// EntryRepository defines persistence operations for ledger entries.
// Entries are append-only: Create inserts, UpdateStatus advances the status
// column forward, nothing is ever deleted.
type EntryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EntryStatus, externalRef, failureReason *string, confirmedAt *time.Time) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
}

// EntryListParams holds filter + pagination for listing an account's entries.
type EntryListParams struct {
	AccountID uuid.UUID
	Status    *domain.EntryStatus
	Kind      *domain.EntryKind
	From      *int64 // Unix timestamp
	To        *int64 // Unix timestamp
	Page      int
	PageSize  int
}

// TransferRepository defines persistence for transfer intents.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, intent *domain.TransferIntent) error
	GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.TransferIntent, error)
	GetByEntryID(ctx context.Context, entryID uuid.UUID) (*domain.TransferIntent, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, correlationID uuid.UUID, status domain.TransferStatus, completedAt *time.Time) error
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup
// behind the Redis cache layer).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
