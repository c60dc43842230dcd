package service

import (
	"context"
	"fmt"

	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// ConfirmationGateway implements ports.ConfirmationConsumer: the single
// inbound edge for operator confirmation events. It routes transfer-leg
// events to the orchestrator and standalone deposit/withdraw events straight
// to the ledger. Late, duplicate and out-of-order events resolve through the
// entry state machine rather than through transport guarantees.
type ConfirmationGateway struct {
	entryRepo ports.EntryRepository
	ledger    ports.LedgerService
	transfers ports.TransferService
	log       zerolog.Logger
}

// NewConfirmationGateway creates a new ConfirmationGateway.
func NewConfirmationGateway(
	entryRepo ports.EntryRepository,
	ledger ports.LedgerService,
	transfers ports.TransferService,
	log zerolog.Logger,
) *ConfirmationGateway {
	return &ConfirmationGateway{
		entryRepo: entryRepo,
		ledger:    ledger,
		transfers: transfers,
		log:       log,
	}
}

// Consume applies one operator confirmation event.
func (g *ConfirmationGateway) Consume(ctx context.Context, event domain.ConfirmationEvent) error {
	if event.Outcome != domain.ConfirmationOutcomeConfirmed && event.Outcome != domain.ConfirmationOutcomeFailed {
		return apperror.Validation(fmt.Sprintf("unknown confirmation outcome %q", event.Outcome))
	}

	entry, err := g.entryRepo.GetByID(ctx, event.EntryID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get entry: %w", err))
	}
	if entry == nil {
		return apperror.ErrNotFound("transaction")
	}

	g.log.Info().
		Str("entry_id", event.EntryID.String()).
		Str("outcome", string(event.Outcome)).
		Str("external_ref", event.ExternalRef).
		Msg("operator confirmation received")

	if entry.CorrelationID != nil {
		return g.transfers.HandleOutcome(ctx, event)
	}

	if event.Outcome == domain.ConfirmationOutcomeFailed {
		reason := event.Reason
		if reason == "" {
			reason = "operator rejected"
		}
		_, err := g.ledger.Fail(ctx, event.EntryID, reason)
		return err
	}
	_, err = g.ledger.Confirm(ctx, event.EntryID, event.ExternalRef)
	return err
}
