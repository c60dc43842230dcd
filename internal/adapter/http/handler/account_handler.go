package handler

import (
	"stellarpay-ledger/internal/adapter/http/dto"
	"stellarpay-ledger/internal/adapter/http/middleware"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"
	"stellarpay-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler exposes the account owner's balance projection.
type AccountHandler struct {
	projectionSvc ports.ProjectionService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(projectionSvc ports.ProjectionService) *AccountHandler {
	return &AccountHandler{projectionSvc: projectionSvc}
}

// Me handles GET /api/v1/accounts/me.
func (h *AccountHandler) Me(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	account, err := h.projectionSvc.GetAccount(c.Request.Context(), accountID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.AccountResponse{
		ID:          account.ID.String(),
		Username:    account.Username,
		CountryCode: account.CountryCode,
		MSISDN:      account.MSISDN,
		Operator:    account.Operator,
		Balance:     account.Balance,
		Reserved:    account.Reserved,
		Available:   account.Available(),
		Status:      string(account.Status),
	})
}
