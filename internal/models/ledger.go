package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus represents account status
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

type Account struct {
	ID            string              `json:"id" db:"id"`
	UserID        string              `json:"user_id" db:"user_id"`
	Name          string              `json:"name" db:"name"`
	Type          string              `json:"type" db:"type"`
	Balance       decimal.Decimal     `json:"balance" db:"balance"`
	Currency      string              `json:"currency" db:"currency"`
	Status        AccountStatus       `json:"status" db:"status"`
	AccountNumber string              `json:"account_number" db:"account_number"`
	Limit         decimal.NullDecimal `json:"limit" db:"limit"` // overdraft ceiling, balance may not drop below -limit
	IsHighlighted bool                `json:"is_highlighted" db:"is_highlighted"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

// Floor is the lowest balance the account may hold after a committed movement.
func (a *Account) Floor() decimal.Decimal {
	if a.Limit.Valid {
		return a.Limit.Decimal.Neg()
	}
	return decimal.Zero
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// EntryStatus represents ledger entry status
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusPending, EntryStatusCompleted, EntryStatusFailed:
		return true
	}
	return false
}

type Category string

const (
	CategoryGroceries      Category = "groceries"
	CategoryDining         Category = "dining"
	CategoryTransportation Category = "transportation"
	CategoryUtilities      Category = "utilities"
	CategoryEntertainment  Category = "entertainment"
	CategoryShopping       Category = "shopping"
	CategoryHealthcare     Category = "healthcare"
	CategoryTransfer       Category = "transfer" // reserved for transfer legs
	CategorySalary         Category = "salary"
	CategoryInvestment     Category = "investment"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGroceries, CategoryDining, CategoryTransportation, CategoryUtilities,
		CategoryEntertainment, CategoryShopping, CategoryHealthcare, CategoryTransfer,
		CategorySalary, CategoryInvestment:
		return true
	}
	return false
}

// LedgerEntry is one signed movement against one account. Negative amounts are debits.
type LedgerEntry struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Date      time.Time       `json:"date" db:"date"`
	Merchant  string          `json:"merchant" db:"merchant"`
	Category  Category        `json:"category" db:"category"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    EntryStatus     `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ReconcileReport compares an account balance with its completed ledger entries
type ReconcileReport struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Balanced  bool            `json:"balanced"`
}
