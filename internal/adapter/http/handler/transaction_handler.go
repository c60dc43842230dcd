package handler

import (
	"strconv"

	"stellarpay-ledger/internal/adapter/http/dto"
	"stellarpay-ledger/internal/adapter/http/middleware"
	"stellarpay-ledger/internal/core/domain"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/pkg/apperror"
	"stellarpay-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler handles deposit, withdraw and entry lifecycle endpoints.
type TransactionHandler struct {
	ledgerSvc     ports.LedgerService
	projectionSvc ports.ProjectionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ledgerSvc ports.LedgerService, projectionSvc ports.ProjectionService) *TransactionHandler {
	return &TransactionHandler{ledgerSvc: ledgerSvc, projectionSvc: projectionSvc}
}

// Deposit handles POST /api/v1/transactions/deposit. The entry stays pending
// until the mobile money operator confirms the cash-in.
func (h *TransactionHandler) Deposit(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entry, err := h.ledgerSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		AccountID:      accountID.(uuid.UUID),
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, toTransactionResponse(entry))
}

// Withdraw handles POST /api/v1/transactions/withdraw.
func (h *TransactionHandler) Withdraw(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entry, err := h.ledgerSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
		AccountID:      accountID.(uuid.UUID),
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, toTransactionResponse(entry))
}

// Cancel handles POST /api/v1/transactions/:id/cancel.
func (h *TransactionHandler) Cancel(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	entry, err := h.ledgerSvc.Cancel(c.Request.Context(), entryID, accountID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(entry))
}

// Get handles GET /api/v1/transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	entry, err := h.ledgerSvc.GetEntry(c.Request.Context(), entryID, accountID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(entry))
}

// List handles GET /api/v1/transactions with optional status/kind filters
// and pagination.
func (h *TransactionHandler) List(c *gin.Context) {
	accountID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params := ports.EntryListParams{
		AccountID: accountID.(uuid.UUID),
		Page:      1,
		PageSize:  20,
	}
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		params.Page = p
	}
	if ps, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil && ps > 0 && ps <= 100 {
		params.PageSize = ps
	}
	if s := c.Query("status"); s != "" {
		status := domain.EntryStatus(s)
		params.Status = &status
	}
	if k := c.Query("kind"); k != "" {
		kind := domain.EntryKind(k)
		params.Kind = &kind
	}

	entries, total, err := h.projectionSvc.ListEntries(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toTransactionResponse(&entries[i]))
	}
	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// toTransactionResponse converts a domain.LedgerEntry to its DTO.
func toTransactionResponse(entry *domain.LedgerEntry) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:            entry.ID.String(),
		Kind:          string(entry.Kind),
		Amount:        entry.Amount,
		Status:        string(entry.Status),
		ExternalRef:   entry.ExternalRef,
		FailureReason: entry.FailureReason,
		CreatedAt:     entry.CreatedAt.Format(timeLayout),
	}
	if entry.SourceAccount != nil {
		s := entry.SourceAccount.String()
		resp.SourceAccount = &s
	}
	if entry.DestAccount != nil {
		s := entry.DestAccount.String()
		resp.DestinationAccount = &s
	}
	if entry.CorrelationID != nil {
		s := entry.CorrelationID.String()
		resp.CorrelationID = &s
	}
	if entry.OriginalEntryID != nil {
		s := entry.OriginalEntryID.String()
		resp.OriginalEntryID = &s
	}
	if entry.ConfirmedAt != nil {
		s := entry.ConfirmedAt.Format(timeLayout)
		resp.ConfirmedAt = &s
	}
	return resp
}
