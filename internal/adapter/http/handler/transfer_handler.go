package handler

import (
	"stellarpay-ledger/internal/adapter/http/dto"
	"stellarpay-ledger/internal/adapter/http/middleware"
	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"
	"stellarpay-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles inter-country transfer endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Initiate handles POST /api/v1/transfers. Both legs are staged pending; the
// recipient sees the funds only after operator confirmation.
func (h *TransferHandler) Initiate(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	toAccount, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid destination account id"))
		return
	}

	intent, err := h.transferSvc.InitiateTransfer(c.Request.Context(), ports.TransferRequest{
		FromAccount:    accountID.(uuid.UUID),
		ToAccount:      toAccount,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, toTransferResponse(intent))
}

// Get handles GET /api/v1/transfers/:id (correlation id).
func (h *TransferHandler) Get(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	corrID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transfer id"))
		return
	}

	intent, err := h.transferSvc.GetTransfer(c.Request.Context(), corrID, accountID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransferResponse(intent))
}

// toTransferResponse converts a domain.TransferIntent to its DTO.
func toTransferResponse(intent *domain.TransferIntent) dto.TransferResponse {
	resp := dto.TransferResponse{
		CorrelationID: intent.CorrelationID.String(),
		OutEntryID:    intent.OutEntryID.String(),
		InEntryID:     intent.InEntryID.String(),
		FromAccount:   intent.FromAccount.String(),
		ToAccount:     intent.ToAccount.String(),
		Amount:        intent.Amount,
		Status:        string(intent.Status),
		CreatedAt:     intent.CreatedAt.Format(timeLayout),
	}
	if intent.CompletedAt != nil {
		s := intent.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &s
	}
	return resp
}
