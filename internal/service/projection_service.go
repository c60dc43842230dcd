package service

import (
	"context"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// projectionService implements ports.ProjectionService: read-only views over
// accounts and the ledger for the UI. It never mutates anything.
type projectionService struct {
	accountRepo ports.AccountRepository
	entryRepo   ports.EntryRepository
}

// NewProjectionService creates a new projection service.
func NewProjectionService(
	accountRepo ports.AccountRepository,
	entryRepo ports.EntryRepository,
) ports.ProjectionService {
	return &projectionService{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
	}
}

// GetAccount returns the account with its current balance projection.
func (s *projectionService) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	return account, nil
}

// ListEntries returns a paginated slice of the account's ledger history.
func (s *projectionService) ListEntries(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int64, error) {
	entries, total, err := s.entryRepo.ListByAccount(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return entries, total, nil
}
