package service

import (
	"context"
	"fmt"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AccountStoreImpl implements ports.AccountStore. It is the only writer of
// account balances; the ledger invokes it inside its own database
// transaction so the balance change and the entry status change commit
// together. Every method locks the account row, which serializes concurrent
// operations per account while unrelated accounts proceed in parallel.
type AccountStoreImpl struct {
	accountRepo ports.AccountRepository
	ceiling     int64
	log         zerolog.Logger
}

// NewAccountStore creates a new AccountStoreImpl. ceiling is the maximum
// committed balance in minor units.
func NewAccountStore(accountRepo ports.AccountRepository, ceiling int64, log zerolog.Logger) *AccountStoreImpl {
	return &AccountStoreImpl{
		accountRepo: accountRepo,
		ceiling:     ceiling,
		log:         log,
	}
}

// Get returns the account with its row locked for the rest of the caller's
// transaction.
func (s *AccountStoreImpl) Get(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	return account, nil
}

// Reserve holds amount against the available balance.
func (s *AccountStoreImpl) Reserve(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return apperror.ErrNotFound("account")
	}
	if !account.IsActive() {
		return apperror.ErrAccountInactive()
	}

	if account.Available() < amount {
		return apperror.ErrInsufficientFunds()
	}

	if err := s.accountRepo.UpdateBalances(ctx, tx, accountID, account.Balance, account.Reserved+amount); err != nil {
		return apperror.InternalError(fmt.Errorf("reserve funds: %w", err))
	}

	s.log.Debug().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Int64("reserved", account.Reserved+amount).
		Msg("funds reserved")
	return nil
}

// Release returns a prior reservation to the available balance.
func (s *AccountStoreImpl) Release(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return apperror.ErrNotFound("account")
	}

	newReserved := account.Reserved - amount
	if newReserved < 0 {
		// Releasing more than was held means a ledger bug upstream.
		return apperror.InternalError(fmt.Errorf("release %d exceeds reserved %d on account %s", amount, account.Reserved, accountID))
	}

	if err := s.accountRepo.UpdateBalances(ctx, tx, accountID, account.Balance, newReserved); err != nil {
		return apperror.InternalError(fmt.Errorf("release funds: %w", err))
	}

	s.log.Debug().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Msg("reservation released")
	return nil
}

// Credit adds amount to the committed balance, bounded by the ceiling.
// Deactivated accounts still accept credits: reversals must be able to
// restore funds.
func (s *AccountStoreImpl) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return apperror.ErrNotFound("account")
	}

	newBalance := account.Balance + amount
	if s.ceiling > 0 && newBalance > s.ceiling {
		return apperror.ErrLimitExceeded()
	}

	if err := s.accountRepo.UpdateBalances(ctx, tx, accountID, newBalance, account.Reserved); err != nil {
		return apperror.InternalError(fmt.Errorf("credit funds: %w", err))
	}

	s.log.Debug().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Int64("balance", newBalance).
		Msg("account credited")
	return nil
}

// CommitDebit converts a reservation into a committed debit.
func (s *AccountStoreImpl) CommitDebit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return apperror.ErrNotFound("account")
	}

	if account.Reserved < amount || account.Balance < amount {
		return apperror.InternalError(fmt.Errorf("commit %d exceeds reserved %d / balance %d on account %s",
			amount, account.Reserved, account.Balance, accountID))
	}

	if err := s.accountRepo.UpdateBalances(ctx, tx, accountID, account.Balance-amount, account.Reserved-amount); err != nil {
		return apperror.InternalError(fmt.Errorf("commit debit: %w", err))
	}

	s.log.Debug().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Int64("balance", account.Balance-amount).
		Msg("debit committed")
	return nil
}

// Debit removes committed funds without a prior reservation. Only
// compensating entries that claw back a credit use this path; it fails with
// InsufficientFunds if the money has since left the account.
func (s *AccountStoreImpl) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return apperror.ErrNotFound("account")
	}

	if account.Available() < amount {
		return apperror.ErrInsufficientFunds()
	}

	if err := s.accountRepo.UpdateBalances(ctx, tx, accountID, account.Balance-amount, account.Reserved); err != nil {
		return apperror.InternalError(fmt.Errorf("debit funds: %w", err))
	}

	s.log.Debug().
		Str("account_id", accountID.String()).
		Int64("amount", amount).
		Msg("account debited")
	return nil
}
