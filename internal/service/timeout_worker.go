package service

import (
	"context"
	"time"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// TimeoutReason is recorded on entries failed by the sweeper.
const TimeoutReason = "confirmation_timeout"

const sweepBatchSize = 100

// TimeoutWorker fails pending entries whose operator confirmation never
// arrived within the configured deadline. Withdrawal reservations are
// released and transfer legs unwind together. A confirmation that lands
// after the sweep gets NotPending from the state guard.
type TimeoutWorker struct {
	entryRepo ports.EntryRepository
	ledger    ports.LedgerService
	transfers ports.TransferService
	timeout   time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	done      chan struct{}
}

// NewTimeoutWorker creates a new TimeoutWorker. timeout is how long an entry
// may stay pending; interval is how often the sweep runs.
func NewTimeoutWorker(
	entryRepo ports.EntryRepository,
	ledger ports.LedgerService,
	transfers ports.TransferService,
	timeout time.Duration,
	interval time.Duration,
	log zerolog.Logger,
) *TimeoutWorker {
	return &TimeoutWorker{
		entryRepo: entryRepo,
		ledger:    ledger,
		transfers: transfers,
		timeout:   timeout,
		interval:  interval,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (w *TimeoutWorker) Start() {
	go func() {
		defer close(w.done)
		w.log.Info().
			Dur("interval", w.interval).
			Dur("timeout", w.timeout).
			Msg("timeout worker started")

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.Sweep(context.Background())
			}
		}
	}()
}

// Stop shuts the worker down and waits for an in-flight sweep to finish.
func (w *TimeoutWorker) Stop() {
	close(w.stop)
	<-w.done
	w.log.Info().Msg("timeout worker stopped")
}

// Sweep fails every pending entry created before the deadline cutoff. Each
// entry is handled in its own transaction so one bad row cannot wedge the
// batch; an entry confirmed between the list and the fail is skipped.
func (w *TimeoutWorker) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.timeout)
	expired, err := w.entryRepo.ListPendingBefore(ctx, cutoff, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("timeout sweep: list pending entries failed")
		return
	}

	for i := range expired {
		entry := &expired[i]
		if err := w.expire(ctx, entry); err != nil {
			if apperror.Is(err, apperror.CodeNotPending) {
				continue // confirmed or cancelled while we swept
			}
			w.log.Error().Err(err).
				Str("entry_id", entry.ID.String()).
				Msg("timeout sweep: failed to expire entry")
			continue
		}
		w.log.Info().
			Str("entry_id", entry.ID.String()).
			Str("kind", string(entry.Kind)).
			Msg("pending entry expired")
	}
}

func (w *TimeoutWorker) expire(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.CorrelationID != nil {
		// Transfer legs unwind together through the orchestrator.
		return w.transfers.HandleOutcome(ctx, domain.ConfirmationEvent{
			EntryID: entry.ID,
			Outcome: domain.ConfirmationOutcomeFailed,
			Reason:  TimeoutReason,
		})
	}
	_, err := w.ledger.Fail(ctx, entry.ID, TimeoutReason)
	return err
}
