package service

import (
	"context"
	"testing"
	"time"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports/mocks"
	"stellarpay-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type workerTestDeps struct {
	worker    *TimeoutWorker
	entryRepo *mocks.MockEntryRepository
	ledger    *mocks.MockLedgerService
	transfers *mocks.MockTransferService
	ctrl      *gomock.Controller
}

func setupWorker(t *testing.T) *workerTestDeps {
	ctrl := gomock.NewController(t)
	d := &workerTestDeps{
		entryRepo: mocks.NewMockEntryRepository(ctrl),
		ledger:    mocks.NewMockLedgerService(ctrl),
		transfers: mocks.NewMockTransferService(ctrl),
		ctrl:      ctrl,
	}
	d.worker = NewTimeoutWorker(d.entryRepo, d.ledger, d.transfers, 10*time.Minute, 30*time.Second, zerolog.Nop())
	return d
}

func TestTimeoutWorker_Sweep_FailsExpiredEntries(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID := uuid.New()
	expired := []domain.LedgerEntry{
		{ID: uuid.New(), Kind: domain.EntryKindDeposit, DestAccount: &accountID, Status: domain.EntryStatusPending},
		{ID: uuid.New(), Kind: domain.EntryKindWithdraw, SourceAccount: &accountID, Status: domain.EntryStatusPending},
	}

	d.entryRepo.EXPECT().ListPendingBefore(ctx, gomock.Any(), sweepBatchSize).Return(expired, nil)
	d.ledger.EXPECT().Fail(ctx, expired[0].ID, TimeoutReason).Return(&expired[0], nil)
	d.ledger.EXPECT().Fail(ctx, expired[1].ID, TimeoutReason).Return(&expired[1], nil)

	d.worker.Sweep(ctx)
}

func TestTimeoutWorker_Sweep_TransferLegsUnwindTogether(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID := uuid.New()
	corrID := uuid.New()
	leg := domain.LedgerEntry{
		ID:            uuid.New(),
		Kind:          domain.EntryKindTransferOut,
		SourceAccount: &accountID,
		Status:        domain.EntryStatusPending,
		CorrelationID: &corrID,
	}

	d.entryRepo.EXPECT().ListPendingBefore(ctx, gomock.Any(), sweepBatchSize).Return([]domain.LedgerEntry{leg}, nil)
	d.transfers.EXPECT().HandleOutcome(ctx, domain.ConfirmationEvent{
		EntryID: leg.ID,
		Outcome: domain.ConfirmationOutcomeFailed,
		Reason:  TimeoutReason,
	}).Return(nil)

	d.worker.Sweep(ctx)
}

func TestTimeoutWorker_Sweep_SkipsEntriesConfirmedInFlight(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID := uuid.New()
	racing := domain.LedgerEntry{
		ID:          uuid.New(),
		Kind:        domain.EntryKindDeposit,
		DestAccount: &accountID,
		Status:      domain.EntryStatusPending,
	}
	survivor := domain.LedgerEntry{
		ID:          uuid.New(),
		Kind:        domain.EntryKindDeposit,
		DestAccount: &accountID,
		Status:      domain.EntryStatusPending,
	}

	d.entryRepo.EXPECT().ListPendingBefore(ctx, gomock.Any(), sweepBatchSize).
		Return([]domain.LedgerEntry{racing, survivor}, nil)
	// The first entry was confirmed between listing and expiring; the sweep
	// moves on to the rest of the batch.
	d.ledger.EXPECT().Fail(ctx, racing.ID, TimeoutReason).Return(nil, apperror.ErrNotPending())
	d.ledger.EXPECT().Fail(ctx, survivor.ID, TimeoutReason).Return(&survivor, nil)

	d.worker.Sweep(ctx)
}

func TestTimeoutWorker_StartStop(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	d.entryRepo.EXPECT().ListPendingBefore(gomock.Any(), gomock.Any(), sweepBatchSize).
		Return(nil, nil).AnyTimes()

	d.worker.interval = 5 * time.Millisecond
	d.worker.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.worker.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "worker did not stop")
	}
}
