package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the state of a customer account.
type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "ACTIVE"
	AccountStatusDeactivated AccountStatus = "DEACTIVATED"
)

// Account represents a customer account bound to a mobile-money number.
// Balance and Reserved are integer minor currency units; the spendable
// portion is Balance - Reserved. Accounts are never deleted, only
// deactivated.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"` // Never expose
	CountryCode  string        `json:"country_code"` // ISO 3166-1 alpha-2, e.g. "UG", "CD"
	MSISDN       string        `json:"msisdn"`       // Linked mobile-money number, E.164
	Operator     string        `json:"operator"`     // e.g. "MTN MoMo", "Airtel Money", "Vodacom M-Pesa"
	Balance      int64         `json:"balance"`      // Committed balance, minor units
	Reserved     int64         `json:"reserved"`     // Held for pending debits, minor units
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsActive returns true if the account can transact.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Available returns the balance that can still be reserved.
func (a *Account) Available() int64 {
	return a.Balance - a.Reserved
}
