package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellarpay-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

const transferColumns = `correlation_id, out_entry_id, in_entry_id, from_account, to_account, amount, status, created_at, completed_at`

// Create inserts a transfer intent within a database transaction.
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.TransferIntent) error {
	query := `INSERT INTO transfer_intents (correlation_id, out_entry_id, in_entry_id, from_account, to_account, amount, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		t.CorrelationID, t.OutEntryID, t.InEntryID, t.FromAccount, t.ToAccount,
		t.Amount, t.Status, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer intent: %w", err)
	}
	return nil
}

// GetByCorrelationID fetches an intent by its correlation id.
func (r *TransferRepo) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.TransferIntent, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_intents WHERE correlation_id = $1`
	return scanTransfer(r.pool.QueryRow(ctx, query, correlationID), "get transfer by correlation id")
}

// GetByEntryID fetches the intent owning either leg.
func (r *TransferRepo) GetByEntryID(ctx context.Context, entryID uuid.UUID) (*domain.TransferIntent, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_intents WHERE out_entry_id = $1 OR in_entry_id = $1`
	return scanTransfer(r.pool.QueryRow(ctx, query, entryID), "get transfer by entry id")
}

// UpdateStatus advances an intent's composite status within a transaction.
func (r *TransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, correlationID uuid.UUID, status domain.TransferStatus, completedAt *time.Time) error {
	query := `UPDATE transfer_intents SET status = $1, completed_at = COALESCE($2, completed_at) WHERE correlation_id = $3`

	tag, err := tx.Exec(ctx, query, status, completedAt, correlationID)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer intent not found: %s", correlationID)
	}
	return nil
}

func scanTransfer(row pgx.Row, op string) (*domain.TransferIntent, error) {
	t := &domain.TransferIntent{}
	err := row.Scan(
		&t.CorrelationID, &t.OutEntryID, &t.InEntryID, &t.FromAccount, &t.ToAccount,
		&t.Amount, &t.Status, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}
