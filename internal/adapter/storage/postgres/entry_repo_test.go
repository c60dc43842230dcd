package postgres

import (
	"context"
	"testing"
	"time"

	"stellarpay-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry() *domain.LedgerEntry {
	dst := uuid.New()
	return &domain.LedgerEntry{
		ID:             uuid.New(),
		Kind:           domain.EntryKindDeposit,
		DestAccount:    &dst,
		Amount:         25000,
		Status:         domain.EntryStatusPending,
		IdempotencyKey: dst.String() + ":dep-001",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func entryColumnNames() []string {
	return []string{"id", "kind", "source_account", "destination_account", "amount", "status",
		"idempotency_key", "correlation_id", "original_entry_id", "external_ref", "failure_reason", "created_at", "confirmed_at"}
}

func entryRow(e *domain.LedgerEntry) *pgxmock.Rows {
	return pgxmock.NewRows(entryColumnNames()).AddRow(
		e.ID, e.Kind, e.SourceAccount, e.DestAccount, e.Amount, e.Status,
		e.IdempotencyKey, e.CorrelationID, e.OriginalEntryID, e.ExternalRef,
		e.FailureReason, e.CreatedAt, e.ConfirmedAt,
	)
}

func TestEntryRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)
	e := newTestEntry()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(e.ID, e.Kind, e.SourceAccount, e.DestAccount, e.Amount, e.Status,
			e.IdempotencyKey, e.CorrelationID, e.OriginalEntryID, e.ExternalRef,
			e.FailureReason, e.CreatedAt, e.ConfirmedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)
	e := newTestEntry()

	mock.ExpectQuery("SELECT .+ FROM ledger_entries WHERE id").
		WithArgs(e.ID).
		WillReturnRows(entryRow(e))

	result, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, e.ID, result.ID)
	assert.Equal(t, domain.EntryKindDeposit, result.Kind)
	assert.Equal(t, domain.EntryStatusPending, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepo_GetByIdempotencyKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)
	e := newTestEntry()

	mock.ExpectQuery("SELECT .+ FROM ledger_entries WHERE idempotency_key").
		WithArgs(e.IdempotencyKey).
		WillReturnRows(entryRow(e))

	result, err := repo.GetByIdempotencyKey(context.Background(), e.IdempotencyKey)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, e.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepo_GetByIdempotencyKey_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries WHERE idempotency_key").
		WithArgs("missing-key").
		WillReturnRows(pgxmock.NewRows(entryColumnNames()))

	result, err := repo.GetByIdempotencyKey(context.Background(), "missing-key")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)
	id := uuid.New()
	ref := "MTN-REF-12345"
	confirmedAt := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ledger_entries SET status").
		WithArgs(domain.EntryStatusConfirmed, &ref, (*string)(nil), &confirmedAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), tx, id, domain.EntryStatusConfirmed, &ref, nil, &confirmedAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepo_UpdateStatus_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)
	id := uuid.New()
	reason := "confirmation_timeout"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ledger_entries SET status").
		WithArgs(domain.EntryStatusFailed, (*string)(nil), &reason, (*time.Time)(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), tx, id, domain.EntryStatusFailed, nil, &reason, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "entry not found")
}

func TestEntryRepo_ListPendingBefore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEntryRepo(mock)
	e1 := newTestEntry()
	e2 := newTestEntry()
	cutoff := time.Now().UTC()

	rows := pgxmock.NewRows(entryColumnNames()).
		AddRow(e1.ID, e1.Kind, e1.SourceAccount, e1.DestAccount, e1.Amount, e1.Status,
			e1.IdempotencyKey, e1.CorrelationID, e1.OriginalEntryID, e1.ExternalRef,
			e1.FailureReason, e1.CreatedAt, e1.ConfirmedAt).
		AddRow(e2.ID, e2.Kind, e2.SourceAccount, e2.DestAccount, e2.Amount, e2.Status,
			e2.IdempotencyKey, e2.CorrelationID, e2.OriginalEntryID, e2.ExternalRef,
			e2.FailureReason, e2.CreatedAt, e2.ConfirmedAt)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs(domain.EntryStatusPending, cutoff, 100).
		WillReturnRows(rows)

	result, err := repo.ListPendingBefore(context.Background(), cutoff, 100)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
