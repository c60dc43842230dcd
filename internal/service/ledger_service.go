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

const idempotencyTTL = 24 * time.Hour

// CancelledReason is recorded on entries failed by a caller-requested cancel.
const CancelledReason = "cancelled"

// LedgerServiceImpl implements ports.LedgerService. The ledger is
// append-only: the status column is the single mutable field and moves only
// forward through the entry state machine.
type LedgerServiceImpl struct {
	entryRepo    ports.EntryRepository
	accountStore ports.AccountStore
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	maxAmount    int64
	window       time.Duration
	log          zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. maxAmount caps single
// entry amounts, window bounds how long a confirmed entry stays reversible.
func NewLedgerService(
	entryRepo ports.EntryRepository,
	accountStore ports.AccountStore,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	maxAmount int64,
	window time.Duration,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		entryRepo:    entryRepo,
		accountStore: accountStore,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		maxAmount:    maxAmount,
		window:       window,
		log:          log,
	}
}

// Deposit appends a pending deposit entry. The balance is credited only when
// the operator confirms; until then the entry has no monetary effect.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		Kind:           domain.EntryKindDeposit,
		DestAccount:    &req.AccountID,
		Amount:         req.Amount,
		Status:         domain.EntryStatusPending,
		IdempotencyKey: domain.BuildIdempotencyKey(req.AccountID, domain.OpDeposit, req.IdempotencyKey),
	}
	return s.append(ctx, entry)
}

// Withdraw appends a pending withdraw entry, reserving the amount against
// the available balance in the same storage transaction.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		Kind:           domain.EntryKindWithdraw,
		SourceAccount:  &req.AccountID,
		Amount:         req.Amount,
		Status:         domain.EntryStatusPending,
		IdempotencyKey: domain.BuildIdempotencyKey(req.AccountID, domain.OpWithdraw, req.IdempotencyKey),
	}
	return s.append(ctx, entry)
}

// append is the shared Deposit/Withdraw path: two-layer idempotency check,
// then one storage transaction covering reservation, entry row and
// idempotency log.
func (s *LedgerServiceImpl) append(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.maxAmount > 0 && entry.Amount > s.maxAmount {
		return nil, apperror.ErrAmountLimitExceeded()
	}
	if reason := entry.ValidateShape(); reason != "" {
		return nil, apperror.ErrInvalidEntry(reason)
	}

	// Layer 1: Redis idempotency check
	cached, err := s.idempCache.Get(ctx, entry.IdempotencyKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", entry.IdempotencyKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedEntry(cached)
	}

	// Layer 2: DB idempotency check
	idempLog, err := s.idempRepo.Get(ctx, entry.IdempotencyKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return s.unmarshalCachedEntry(idempLog.ResponseJSON)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Debit kinds hold the funds up front so a later confirmation cannot
	// find the balance gone.
	if entry.IsDebit() {
		if err := s.accountStore.Reserve(ctx, dbTx, *entry.SourceAccount, entry.Amount); err != nil {
			return nil, err
		}
	} else if err := s.requireActiveAccount(ctx, dbTx, *entry.DestAccount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.CreatedAt = now
	if err := s.entryRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create entry: %w", err))
	}

	respJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	idempLogEntry := &domain.IdempotencyLog{
		Key:          entry.IdempotencyKey,
		EntryID:      entry.ID,
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
	if err := s.idempCache.Set(ctx, entry.IdempotencyKey, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", entry.IdempotencyKey).Msg("failed to cache idempotency in redis")
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("kind", string(entry.Kind)).
		Int64("amount", entry.Amount).
		Msg("ledger entry appended")

	return entry, nil
}

// Confirm moves a pending entry to confirmed and applies its balance side
// effect. Resubmitting the same external ref on an already confirmed entry
// is a no-op; any other non-pending state returns NotPending. A credit that
// would breach the balance ceiling fails the entry instead of confirming it.
func (s *LedgerServiceImpl) Confirm(ctx context.Context, entryID uuid.UUID, externalRef string) (*domain.LedgerEntry, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.entryRepo.GetByIDForUpdate(ctx, dbTx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	if entry.Status != domain.EntryStatusPending {
		if entry.Status == domain.EntryStatusConfirmed && entry.ExternalRef != nil && *entry.ExternalRef == externalRef {
			return entry, nil
		}
		return nil, apperror.ErrNotPending()
	}

	now := time.Now().UTC()

	if entry.IsDebit() {
		if err := s.accountStore.CommitDebit(ctx, dbTx, *entry.SourceAccount, entry.Amount); err != nil {
			return nil, err
		}
	} else {
		err := s.accountStore.Credit(ctx, dbTx, *entry.DestAccount, entry.Amount)
		if apperror.Is(err, apperror.CodeLimitExceeded) {
			failed, ferr := s.failLocked(ctx, dbTx, entry, "balance ceiling exceeded", now)
			if ferr != nil {
				return nil, ferr
			}
			// The FAILED status write rides this transaction; without the
			// commit the deferred rollback would leave the entry PENDING.
			if cerr := dbTx.Commit(ctx); cerr != nil {
				return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", cerr))
			}
			return failed, nil
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.entryRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusConfirmed, &externalRef, nil, &now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("confirm entry: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	entry.Status = domain.EntryStatusConfirmed
	entry.ExternalRef = &externalRef
	entry.ConfirmedAt = &now

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("external_ref", externalRef).
		Msg("ledger entry confirmed")

	return entry, nil
}

// Fail moves a pending entry to failed, releasing any reservation.
// Repeating the same failure is a no-op.
func (s *LedgerServiceImpl) Fail(ctx context.Context, entryID uuid.UUID, reason string) (*domain.LedgerEntry, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.entryRepo.GetByIDForUpdate(ctx, dbTx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	if entry.Status != domain.EntryStatusPending {
		if entry.Status == domain.EntryStatusFailed {
			return entry, nil
		}
		return nil, apperror.ErrNotPending()
	}

	now := time.Now().UTC()
	failed, err := s.failLocked(ctx, dbTx, entry, reason, now)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return failed, nil
}

// failLocked marks an already locked pending entry failed and releases its
// reservation. The caller owns the transaction and the commit.
func (s *LedgerServiceImpl) failLocked(ctx context.Context, dbTx pgx.Tx, entry *domain.LedgerEntry, reason string, now time.Time) (*domain.LedgerEntry, error) {
	if entry.IsDebit() {
		if err := s.accountStore.Release(ctx, dbTx, *entry.SourceAccount, entry.Amount); err != nil {
			return nil, err
		}
	}
	if err := s.entryRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusFailed, nil, &reason, nil); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fail entry: %w", err))
	}

	entry.Status = domain.EntryStatusFailed
	entry.FailureReason = &reason

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("reason", reason).
		Msg("ledger entry failed")

	return entry, nil
}

// Cancel is a caller-requested Fail. A cancel racing an in-flight
// confirmation loses gracefully: whichever transaction locks the entry row
// second sees a terminal status and gets NotPending.
func (s *LedgerServiceImpl) Cancel(ctx context.Context, entryID uuid.UUID, requestedBy uuid.UUID) (*domain.LedgerEntry, error) {
	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get entry: %w", err))
	}
	if entry == nil || !entry.BelongsTo(requestedBy) {
		return nil, apperror.ErrNotFound("transaction")
	}
	if entry.CorrelationID != nil {
		return nil, apperror.ErrInvalidEntry("transfer legs cannot be cancelled individually")
	}
	return s.Fail(ctx, entryID, CancelledReason)
}

// Reverse appends a confirmed compensating entry mirroring the original and
// marks the original reversed. Only confirmed, non-compensating entries
// inside the reversal window qualify. The original row is never edited
// beyond its status; the compensating entry is the monetary correction.
func (s *LedgerServiceImpl) Reverse(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	// A prior reversal of the same entry is returned as-is.
	revKey := domain.BuildReversalIdempotencyKey(entryID)
	if existing, err := s.entryRepo.GetByIdempotencyKey(ctx, revKey); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing reversal: %w", err))
	} else if existing != nil {
		return existing, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.entryRepo.GetByIDForUpdate(ctx, dbTx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	now := time.Now().UTC()
	if entry.Status != domain.EntryStatusConfirmed {
		return nil, apperror.ErrInvalidTransition(string(entry.Status), string(domain.EntryStatusReversed))
	}
	if !entry.IsReversible(s.window, now) {
		return nil, apperror.ErrReversalWindowClosed()
	}

	comp := &domain.LedgerEntry{
		ID:              uuid.New(),
		Kind:            entry.CompensatingKind(),
		Amount:          entry.Amount,
		Status:          domain.EntryStatusConfirmed,
		IdempotencyKey:  revKey,
		CorrelationID:   entry.CorrelationID,
		OriginalEntryID: &entry.ID,
		CreatedAt:       now,
		ConfirmedAt:     &now,
	}

	// The compensating entry points the money the other way: a reversed
	// credit debits the account that received it, a reversed debit credits
	// the account that paid.
	if entry.IsCredit() {
		comp.SourceAccount = entry.DestAccount
		if err := s.accountStore.Debit(ctx, dbTx, *entry.DestAccount, entry.Amount); err != nil {
			return nil, err
		}
	} else {
		comp.DestAccount = entry.SourceAccount
		if err := s.accountStore.Credit(ctx, dbTx, *entry.SourceAccount, entry.Amount); err != nil {
			return nil, err
		}
	}

	if err := s.entryRepo.Create(ctx, dbTx, comp); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create compensating entry: %w", err))
	}
	if err := s.entryRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusReversed, nil, nil, nil); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark entry reversed: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("compensating_id", comp.ID.String()).
		Int64("amount", entry.Amount).
		Msg("ledger entry reversed")

	return comp, nil
}

// GetEntry returns an entry visible to requestedBy (source or destination).
func (s *LedgerServiceImpl) GetEntry(ctx context.Context, entryID uuid.UUID, requestedBy uuid.UUID) (*domain.LedgerEntry, error) {
	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get entry: %w", err))
	}
	if entry == nil || !entry.BelongsTo(requestedBy) {
		return nil, apperror.ErrNotFound("transaction")
	}
	return entry, nil
}

// requireActiveAccount verifies the credited account exists and is active
// before a pending credit entry is appended.
func (s *LedgerServiceImpl) requireActiveAccount(ctx context.Context, dbTx pgx.Tx, accountID uuid.UUID) error {
	account, err := s.accountStore.Get(ctx, dbTx, accountID)
	if err != nil {
		return err
	}
	if !account.IsActive() {
		return apperror.ErrAccountInactive()
	}
	return nil
}

// unmarshalCachedEntry deserializes a cached entry.
func (s *LedgerServiceImpl) unmarshalCachedEntry(data []byte) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached entry: %w", err))
	}
	return entry, nil
}
