package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes the services branch on programmatically.
const (
	CodeNotPending        = "LED_002"
	CodeInsufficientFunds = "ACC_001"
	CodeLimitExceeded     = "ACC_002"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether err is (or wraps) an AppError carrying the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger State Machine (LED) ----

func ErrInvalidEntry(reason string) *AppError {
	return New("LED_001", fmt.Sprintf("Invalid ledger entry: %s", reason), http.StatusBadRequest)
}

func ErrNotPending() *AppError {
	return New("LED_002", "Entry is not in pending state", http.StatusConflict)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("LED_003", fmt.Sprintf("Invalid status transition %s -> %s", from, to), http.StatusConflict)
}

func ErrReversalWindowClosed() *AppError {
	return New("LED_004", "Reversal window has closed for this entry", http.StatusConflict)
}

func ErrDuplicateIdempotencyKey() *AppError {
	return New("LED_005", "Duplicate idempotency key", http.StatusConflict)
}

// ---- Account Business Rules (ACC) ----

func ErrInsufficientFunds() *AppError {
	return New("ACC_001", "Insufficient available balance", http.StatusPaymentRequired)
}

func ErrLimitExceeded() *AppError {
	return New("ACC_002", "Account balance ceiling exceeded", http.StatusUnprocessableEntity)
}

func ErrNotFound(entity string) *AppError {
	return New("ACC_003", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAccountInactive() *AppError {
	return New("ACC_004", "Account is deactivated", http.StatusForbidden)
}

func ErrAmountLimitExceeded() *AppError {
	return New("ACC_005", "Transaction amount exceeds the configured limit", http.StatusUnprocessableEntity)
}

func ErrInvalidAmount() *AppError {
	return New("ACC_006", "Invalid amount", http.StatusBadRequest)
}

// ---- Operator Callback Security (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid callback signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_002", "Callback timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_003", "Nonce has already been used", http.StatusForbidden)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrMSISDNExists() *AppError {
	return New("AUTH_003", "Mobile money number already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_004", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns an ACC_006-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("ACC_006", message, http.StatusBadRequest)
}
