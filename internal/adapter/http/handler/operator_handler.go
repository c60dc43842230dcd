package handler

import (
	"stellarpay-ledger/internal/adapter/http/dto"
	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"
	"stellarpay-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OperatorHandler receives confirmation callbacks from mobile-money
// operators. The route sits behind HMAC auth, not JWT.
type OperatorHandler struct {
	consumer ports.ConfirmationConsumer
}

// NewOperatorHandler creates a new OperatorHandler.
func NewOperatorHandler(consumer ports.ConfirmationConsumer) *OperatorHandler {
	return &OperatorHandler{consumer: consumer}
}

// Confirm handles POST /api/v1/operator/confirmations. Duplicate and
// late deliveries are absorbed by the ledger state machine, so the
// endpoint stays safe to retry.
func (h *OperatorHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entryID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	event := domain.ConfirmationEvent{
		EntryID:     entryID,
		ExternalRef: req.ExternalRef,
		Outcome:     domain.ConfirmationOutcome(req.Outcome),
		Reason:      req.Reason,
	}

	if err := h.consumer.Consume(c.Request.Context(), event); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"transaction_id": entryID.String()})
}
