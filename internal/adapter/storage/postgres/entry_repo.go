package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EntryRepo implements ports.EntryRepository over the append-only
// ledger_entries table.
type EntryRepo struct {
	pool Pool
}

// NewEntryRepo creates a new EntryRepo.
func NewEntryRepo(pool Pool) *EntryRepo {
	return &EntryRepo{pool: pool}
}

const entryColumns = `id, kind, source_account, destination_account, amount, status,
		idempotency_key, correlation_id, original_entry_id, external_ref, failure_reason, created_at, confirmed_at`

// Create appends a new ledger entry within a database transaction.
func (r *EntryRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, kind, source_account, destination_account, amount, status,
		idempotency_key, correlation_id, original_entry_id, external_ref, failure_reason, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.Kind, e.SourceAccount, e.DestAccount, e.Amount, e.Status,
		e.IdempotencyKey, e.CorrelationID, e.OriginalEntryID, e.ExternalRef,
		e.FailureReason, e.CreatedAt, e.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches an entry by UUID (without locking).
func (r *EntryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, id), "get entry by id")
}

// GetByIDForUpdate fetches an entry with a pessimistic row lock so a status
// transition and its balance side effect are decided under one lock.
// This MUST be called within a transaction.
func (r *EntryRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`
	return scanEntry(tx.QueryRow(ctx, query, id), "get entry for update")
}

// GetByIdempotencyKey fetches an entry by its unique idempotency key.
func (r *EntryRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE idempotency_key = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, key), "get entry by idempotency key")
}

// UpdateStatus advances an entry's status within a database transaction.
// The ledger is append-only: this is the only mutating statement and it
// touches nothing but the lifecycle columns.
func (r *EntryRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EntryStatus, externalRef, failureReason *string, confirmedAt *time.Time) error {
	query := `UPDATE ledger_entries SET status = $1,
		external_ref = COALESCE($2, external_ref),
		failure_reason = COALESCE($3, failure_reason),
		confirmed_at = COALESCE($4, confirmed_at)
		WHERE id = $5`

	tag, err := tx.Exec(ctx, query, status, externalRef, failureReason, confirmedAt, id)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry not found: %s", id)
	}
	return nil
}

// ListPendingBefore returns pending entries created before the cutoff,
// oldest first. The timeout sweeper feeds on this.
func (r *EntryRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.EntryStatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByAccount fetches entries touching an account, with filters and
// pagination.
func (r *EntryRepo) ListByAccount(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("(source_account = $%d OR destination_account = $%d)", argIdx, argIdx))
	args = append(args, params.AccountID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, *params.Kind)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ledger_entries %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT `+entryColumns+` FROM ledger_entries %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanEntry(row pgx.Row, op string) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.ID, &e.Kind, &e.SourceAccount, &e.DestAccount, &e.Amount, &e.Status,
		&e.IdempotencyKey, &e.CorrelationID, &e.OriginalEntryID, &e.ExternalRef,
		&e.FailureReason, &e.CreatedAt, &e.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e := domain.LedgerEntry{}
		err := rows.Scan(
			&e.ID, &e.Kind, &e.SourceAccount, &e.DestAccount, &e.Amount, &e.Status,
			&e.IdempotencyKey, &e.CorrelationID, &e.OriginalEntryID, &e.ExternalRef,
			&e.FailureReason, &e.CreatedAt, &e.ConfirmedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}
	return entries, nil
}
