package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferRequest moves funds out of one of the requester's accounts. Exactly one of
// ToAccountID (own account) or ToAccountNumber (peer lookup) must be set.
type TransferRequest struct {
	FromAccountID   string          `json:"fromAccountId" validate:"required"`
	ToAccountID     string          `json:"toAccountId,omitempty"`
	ToAccountNumber string          `json:"toAccountNumber,omitempty" validate:"omitempty,max=32"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description,omitempty" validate:"max=255"`
}

// TransferResult holds both persisted legs and the post-transfer account snapshots
type TransferResult struct {
	FromTransaction LedgerEntry `json:"fromTransaction"`
	ToTransaction   LedgerEntry `json:"toTransaction"`
	FromAccount     Account     `json:"fromAccount"`
	ToAccount       Account     `json:"toAccount"`
}

// NewTransaction is a manually recorded ledger movement on a single account
type NewTransaction struct {
	AccountID string          `json:"account_id" validate:"required"`
	Date      time.Time       `json:"date"`
	Merchant  string          `json:"merchant" validate:"required,max=255"`
	Category  Category        `json:"category" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Status    EntryStatus     `json:"status,omitempty"`
}
