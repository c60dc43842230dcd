package dto

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	CountryCode string `json:"country" binding:"required,len=2"`
	MSISDN      string `json:"msisdn" binding:"required,msisdn"`
	Operator    string `json:"operator" binding:"required,min=2,max=50"`
}

// LoginRequest is the request body for account login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	AccountID   string `json:"account_id"`
	Username    string `json:"username"`
	CountryCode string `json:"country"`
	MSISDN      string `json:"msisdn"`
	Operator    string `json:"operator"`
	Status      string `json:"status"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DepositRequest is the request body for staging a deposit.
type DepositRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=100,safe_id"`
}

// WithdrawRequest is the request body for staging a withdrawal.
type WithdrawRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=100,safe_id"`
}

// TransferRequest is the request body for initiating a transfer.
type TransferRequest struct {
	ToAccountID    string `json:"to_account_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=100,safe_id"`
}

// ConfirmationRequest is the operator callback body.
type ConfirmationRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	ExternalRef   string `json:"external_ref" binding:"max=200"`
	Outcome       string `json:"outcome" binding:"required,oneof=confirmed failed"`
	Reason        string `json:"reason" binding:"max=500"`
}

// TransactionResponse is the response body for a single ledger entry.
type TransactionResponse struct {
	ID                 string  `json:"id"`
	Kind               string  `json:"kind"`
	SourceAccount      *string `json:"source_account,omitempty"`
	DestinationAccount *string `json:"destination_account,omitempty"`
	Amount             int64   `json:"amount"`
	Status             string  `json:"status"`
	CorrelationID      *string `json:"correlation_id,omitempty"`
	OriginalEntryID    *string `json:"original_entry_id,omitempty"`
	ExternalRef        *string `json:"external_ref,omitempty"`
	FailureReason      *string `json:"failure_reason,omitempty"`
	CreatedAt          string  `json:"created_at"`
	ConfirmedAt        *string `json:"confirmed_at,omitempty"`
}

// TransferResponse is the response body for a transfer intent.
type TransferResponse struct {
	CorrelationID string  `json:"correlation_id"`
	OutEntryID    string  `json:"out_entry_id"`
	InEntryID     string  `json:"in_entry_id"`
	FromAccount   string  `json:"from_account"`
	ToAccount     string  `json:"to_account"`
	Amount        int64   `json:"amount"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// AccountResponse is the balance projection returned to the account owner.
type AccountResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	CountryCode string `json:"country"`
	MSISDN      string `json:"msisdn"`
	Operator    string `json:"operator"`
	Balance     int64  `json:"balance"`
	Reserved    int64  `json:"reserved"`
	Available   int64  `json:"available"`
	Status      string `json:"status"`
}

// TransactionListResponse wraps a paginated entry list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
