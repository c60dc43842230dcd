package ports

import (
	"context"
	"time"

	"stellarpay-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountStore owns all balance mutation. Every method must run inside the
// caller's database transaction with the account row locked, so concurrent
// calls on the same account serialize while unrelated accounts proceed.
type AccountStore interface {
	// Get returns the locked account, or a NotFound error.
	Get(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error)
	// Reserve holds amount against the account's available balance.
	Reserve(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
	// Release returns a prior reservation to the available balance.
	Release(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
	// Credit adds amount to the committed balance, bounded by the ceiling.
	Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
	// CommitDebit converts a reservation into a committed debit.
	CommitDebit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
	// Debit removes committed funds without a prior reservation. Used only
	// by compensating entries that claw back a credit.
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) error
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// SignatureService handles HMAC-SHA256 signing and verification of the
// operator confirmation callback.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for callback replay prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// LedgerService is the authority over ledger entry lifecycle. Balance side
// effects of commits and reversals run through the AccountStore inside the
// same database transaction as the status change.
type LedgerService interface {
	// Deposit stages a pending credit awaiting operator confirmation.
	Deposit(ctx context.Context, req DepositRequest) (*domain.LedgerEntry, error)
	// Withdraw reserves funds and stages a pending debit.
	Withdraw(ctx context.Context, req WithdrawRequest) (*domain.LedgerEntry, error)
	// Confirm finalizes a pending entry with the operator's reference.
	Confirm(ctx context.Context, entryID uuid.UUID, externalRef string) (*domain.LedgerEntry, error)
	// Fail moves a pending entry to failed and releases any reservation.
	Fail(ctx context.Context, entryID uuid.UUID, reason string) (*domain.LedgerEntry, error)
	// Cancel is a caller-requested Fail, honored only while still pending.
	Cancel(ctx context.Context, entryID uuid.UUID, requestedBy uuid.UUID) (*domain.LedgerEntry, error)
	// Reverse appends a compensating entry for a confirmed one.
	Reverse(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error)
	// GetEntry returns one entry, access-checked against requestedBy.
	GetEntry(ctx context.Context, entryID uuid.UUID, requestedBy uuid.UUID) (*domain.LedgerEntry, error)
}

// DepositRequest holds validated input for staging a deposit.
type DepositRequest struct {
	AccountID      uuid.UUID
	Amount         int64
	IdempotencyKey string
}

// WithdrawRequest holds validated input for staging a withdrawal.
type WithdrawRequest struct {
	AccountID      uuid.UUID
	Amount         int64
	IdempotencyKey string
}

// TransferService coordinates the two legs of an inter-country transfer.
type TransferService interface {
	// InitiateTransfer stages both legs pending; at-most-once per key.
	InitiateTransfer(ctx context.Context, req TransferRequest) (*domain.TransferIntent, error)
	// HandleOutcome reacts to an operator outcome on the out leg: commit
	// then credit the in leg, or unwind both.
	HandleOutcome(ctx context.Context, event domain.ConfirmationEvent) error
	// GetTransfer returns the intent, access-checked against requestedBy.
	GetTransfer(ctx context.Context, correlationID uuid.UUID, requestedBy uuid.UUID) (*domain.TransferIntent, error)
}

// TransferRequest holds validated input for an inter-country transfer.
type TransferRequest struct {
	FromAccount    uuid.UUID
	ToAccount      uuid.UUID
	Amount         int64
	IdempotencyKey string
}

// ConfirmationConsumer is the inbound edge of the operator gateway: the
// single entry point for operator confirmation events regardless of
// transport.
type ConfirmationConsumer interface {
	Consume(ctx context.Context, event domain.ConfirmationEvent) error
}

// AuthService defines registration and login.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Username    string
	Password    string
	CountryCode string
	MSISDN      string
	Operator    string
}

// ProjectionService exposes read-only views for the UI layer: balances and
// entry history. It never mutates anything.
type ProjectionService interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	ListEntries(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int64, error)
}
