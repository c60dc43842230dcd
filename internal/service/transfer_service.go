package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TransferServiceImpl implements ports.TransferService. A transfer is two
// linked ledger entries sharing a correlation id: a transfer_out debit on
// the sender and a transfer_in credit on the recipient. The out leg carries
// the operator relationship; the in leg is only credited after the out leg
// commits.
type TransferServiceImpl struct {
	entryRepo    ports.EntryRepository
	transferRepo ports.TransferRepository
	accountStore ports.AccountStore
	ledger       ports.LedgerService
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	maxAmount    int64
	log          zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	entryRepo ports.EntryRepository,
	transferRepo ports.TransferRepository,
	accountStore ports.AccountStore,
	ledger ports.LedgerService,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	maxAmount int64,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		entryRepo:    entryRepo,
		transferRepo: transferRepo,
		accountStore: accountStore,
		ledger:       ledger,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		maxAmount:    maxAmount,
		log:          log,
	}
}

// InitiateTransfer stages both legs pending inside one storage transaction:
// the sender's funds are reserved, both entries and the intent persist
// together, and the idempotency log makes the whole thing at-most-once.
func (s *TransferServiceImpl) InitiateTransfer(ctx context.Context, req ports.TransferRequest) (*domain.TransferIntent, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.maxAmount > 0 && req.Amount > s.maxAmount {
		return nil, apperror.ErrAmountLimitExceeded()
	}
	if req.FromAccount == req.ToAccount {
		return nil, apperror.ErrInvalidEntry("transfer to the same account")
	}

	idempKey := domain.BuildIdempotencyKey(req.FromAccount, domain.OpTransfer, req.IdempotencyKey)

	// Layer 1: Redis idempotency check
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedIntent(cached)
	}

	// Layer 2: DB idempotency check
	idempLog, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return s.unmarshalCachedIntent(idempLog.ResponseJSON)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.lockAndReserve(ctx, dbTx, req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	corrID := uuid.New()
	from, to := req.FromAccount, req.ToAccount

	outEntry := &domain.LedgerEntry{
		ID:             uuid.New(),
		Kind:           domain.EntryKindTransferOut,
		SourceAccount:  &from,
		DestAccount:    &to,
		Amount:         req.Amount,
		Status:         domain.EntryStatusPending,
		IdempotencyKey: domain.BuildLegIdempotencyKey(idempKey, domain.EntryKindTransferOut),
		CorrelationID:  &corrID,
		CreatedAt:      now,
	}
	inEntry := &domain.LedgerEntry{
		ID:             uuid.New(),
		Kind:           domain.EntryKindTransferIn,
		SourceAccount:  &from,
		DestAccount:    &to,
		Amount:         req.Amount,
		Status:         domain.EntryStatusPending,
		IdempotencyKey: domain.BuildLegIdempotencyKey(idempKey, domain.EntryKindTransferIn),
		CorrelationID:  &corrID,
		CreatedAt:      now,
	}
	if err := s.entryRepo.Create(ctx, dbTx, outEntry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create out leg: %w", err))
	}
	if err := s.entryRepo.Create(ctx, dbTx, inEntry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create in leg: %w", err))
	}

	intent := &domain.TransferIntent{
		CorrelationID: corrID,
		OutEntryID:    outEntry.ID,
		InEntryID:     inEntry.ID,
		FromAccount:   from,
		ToAccount:     to,
		Amount:        req.Amount,
		Status:        domain.TransferStatusPending,
		CreatedAt:     now,
	}
	if err := s.transferRepo.Create(ctx, dbTx, intent); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transfer intent: %w", err))
	}

	respJSON, err := json.Marshal(intent)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	idempLogEntry := &domain.IdempotencyLog{
		Key:          idempKey,
		EntryID:      outEntry.ID,
		ResponseJSON: respJSON,
		CreatedAt:    now,
	}
	if err := s.idempRepo.Create(ctx, dbTx, idempLogEntry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
	}

	s.log.Info().
		Str("correlation_id", corrID.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Int64("amount", req.Amount).
		Msg("transfer initiated")

	return intent, nil
}

// lockAndReserve locks both account rows in id order so two opposing
// transfers cannot deadlock, verifies the recipient is active and reserves
// the sender's funds.
func (s *TransferServiceImpl) lockAndReserve(ctx context.Context, dbTx pgx.Tx, req ports.TransferRequest) error {
	checkDest := func() error {
		dest, err := s.accountStore.Get(ctx, dbTx, req.ToAccount)
		if err != nil {
			return err
		}
		if !dest.IsActive() {
			return apperror.ErrAccountInactive()
		}
		return nil
	}

	if req.FromAccount.String() < req.ToAccount.String() {
		if err := s.accountStore.Reserve(ctx, dbTx, req.FromAccount, req.Amount); err != nil {
			return err
		}
		return checkDest()
	}
	if err := checkDest(); err != nil {
		return err
	}
	return s.accountStore.Reserve(ctx, dbTx, req.FromAccount, req.Amount)
}

// HandleOutcome applies an operator outcome to a transfer, addressed by
// either leg. Confirmation commits the sender's debit first and only then
// credits the recipient; failure or timeout unwinds both legs and the
// reservation. If the recipient credit hits the balance ceiling the out leg
// is reversed so the sender is made whole. Replays are absorbed leg by leg.
func (s *TransferServiceImpl) HandleOutcome(ctx context.Context, event domain.ConfirmationEvent) error {
	intent, err := s.transferRepo.GetByEntryID(ctx, event.EntryID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get transfer intent: %w", err))
	}
	if intent == nil {
		return apperror.ErrNotFound("transfer")
	}

	if event.Outcome == domain.ConfirmationOutcomeFailed {
		return s.unwind(ctx, intent, event.Reason)
	}
	return s.complete(ctx, intent, event.ExternalRef)
}

// complete drives the happy path: out leg commit, then in leg credit.
func (s *TransferServiceImpl) complete(ctx context.Context, intent *domain.TransferIntent, externalRef string) error {
	if _, err := s.ledger.Confirm(ctx, intent.OutEntryID, externalRef); err != nil {
		return err
	}

	inEntry, err := s.ledger.Confirm(ctx, intent.InEntryID, externalRef)
	if err != nil {
		return err
	}
	if inEntry.Status == domain.EntryStatusFailed {
		// Recipient ceiling breach: the credit did not happen, so the
		// committed out leg is reversed to restore the sender.
		if _, err := s.ledger.Reverse(ctx, intent.OutEntryID); err != nil {
			return err
		}
		s.log.Warn().
			Str("correlation_id", intent.CorrelationID.String()).
			Msg("transfer in-leg rejected by balance ceiling, out leg reversed")
		return s.updateIntentStatus(ctx, intent.CorrelationID, domain.TransferStatusFailed, nil)
	}

	now := time.Now().UTC()
	if err := s.updateIntentStatus(ctx, intent.CorrelationID, domain.TransferStatusCompleted, &now); err != nil {
		return err
	}

	s.log.Info().
		Str("correlation_id", intent.CorrelationID.String()).
		Msg("transfer completed")
	return nil
}

// unwind closes both legs of a failed or timed-out transfer. The in leg goes
// first: once it is FAILED the recipient can never be credited, so whatever
// happened to the out leg can be settled without double-paying. An out leg
// that already committed its debit (a sweep racing the two Confirm calls of
// complete) is restored through a compensating reversal rather than left
// CONFIRMED with the money gone.
func (s *TransferServiceImpl) unwind(ctx context.Context, intent *domain.TransferIntent, reason string) error {
	if reason == "" {
		reason = "operator rejected"
	}

	if _, err := s.ledger.Fail(ctx, intent.InEntryID, reason); err != nil {
		if !apperror.Is(err, apperror.CodeNotPending) {
			return err
		}
		inEntry, gerr := s.entryRepo.GetByID(ctx, intent.InEntryID)
		if gerr != nil {
			return apperror.InternalError(fmt.Errorf("get in leg: %w", gerr))
		}
		if inEntry != nil && inEntry.Status == domain.EntryStatusConfirmed {
			// Recipient already credited: the transfer completed and there
			// is nothing to unwind.
			return nil
		}
	}

	if _, err := s.ledger.Fail(ctx, intent.OutEntryID, reason); err != nil {
		if !apperror.Is(err, apperror.CodeNotPending) {
			return err
		}
		outEntry, gerr := s.entryRepo.GetByID(ctx, intent.OutEntryID)
		if gerr != nil {
			return apperror.InternalError(fmt.Errorf("get out leg: %w", gerr))
		}
		if outEntry != nil && outEntry.Status == domain.EntryStatusConfirmed {
			// The sender's debit committed before the unwind; the
			// compensating entry puts the money back.
			if _, rerr := s.ledger.Reverse(ctx, intent.OutEntryID); rerr != nil {
				return rerr
			}
			s.log.Warn().
				Str("correlation_id", intent.CorrelationID.String()).
				Str("out_entry_id", intent.OutEntryID.String()).
				Msg("unwound transfer had a committed out leg, sender restored by reversal")
		}
	}

	if err := s.updateIntentStatus(ctx, intent.CorrelationID, domain.TransferStatusFailed, nil); err != nil {
		return err
	}

	s.log.Info().
		Str("correlation_id", intent.CorrelationID.String()).
		Str("reason", reason).
		Msg("transfer unwound")
	return nil
}

func (s *TransferServiceImpl) updateIntentStatus(ctx context.Context, corrID uuid.UUID, status domain.TransferStatus, completedAt *time.Time) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.transferRepo.UpdateStatus(ctx, dbTx, corrID, status, completedAt); err != nil {
		return apperror.InternalError(fmt.Errorf("update transfer status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// GetTransfer returns the intent, visible only to its two parties.
func (s *TransferServiceImpl) GetTransfer(ctx context.Context, correlationID uuid.UUID, requestedBy uuid.UUID) (*domain.TransferIntent, error) {
	intent, err := s.transferRepo.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transfer intent: %w", err))
	}
	if intent == nil || (intent.FromAccount != requestedBy && intent.ToAccount != requestedBy) {
		return nil, apperror.ErrNotFound("transfer")
	}
	return intent, nil
}

// unmarshalCachedIntent deserializes a cached intent.
func (s *TransferServiceImpl) unmarshalCachedIntent(data []byte) (*domain.TransferIntent, error) {
	intent := &domain.TransferIntent{}
	if err := json.Unmarshal(data, intent); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached intent: %w", err))
	}
	return intent, nil
}
