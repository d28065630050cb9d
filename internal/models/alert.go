package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertType string

const (
	AlertTypeLowBalance       AlertType = "low_balance"
	AlertTypeLargeTransaction AlertType = "large_transaction"
)

type AlertRule struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Type      AlertType       `json:"type" db:"type"`
	Threshold decimal.Decimal `json:"threshold" db:"threshold"`
	IsActive  bool            `json:"is_active" db:"is_active"`
}

// AlertEvent is emitted after a completed movement commits
type AlertEvent struct {
	AccountID  string           `json:"account_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

type TriggeredAlert struct {
	Rule          AlertRule `json:"rule"`
	AccountNumber string    `json:"account_number"`
	Message       string    `json:"message"`
}
