package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Advance moves t forward by exactly one frequency unit. Monthly steps use calendar
// months with time.AddDate normalisation, so Jan 31 becomes Mar 2 or Mar 3.
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// ScheduledTransfer is a recurring transfer definition
type ScheduledTransfer struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	FromAccountID     string          `json:"from_account_id" db:"from_account_id"`
	ToAccountID       string          `json:"to_account_id" db:"to_account_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Description       string          `json:"description,omitempty" db:"description"`
	Frequency         Frequency       `json:"frequency" db:"frequency"`
	NextExecutionDate time.Time       `json:"next_execution_date" db:"next_execution_date"`
	EndDate           *time.Time      `json:"end_date,omitempty" db:"end_date"`
	IsActive          bool            `json:"is_active" db:"is_active"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsDue reports whether the schedule should fire on the given day.
func (s *ScheduledTransfer) IsDue(today time.Time) bool {
	if !s.IsActive || s.NextExecutionDate.After(today) {
		return false
	}
	return s.EndDate == nil || !s.EndDate.Before(today)
}

type ScheduledTransferRequest struct {
	FromAccountID     string          `json:"fromAccountId" validate:"required"`
	ToAccountID       string          `json:"toAccountId" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description,omitempty" validate:"max=255"`
	Frequency         Frequency       `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	NextExecutionDate string          `json:"nextExecutionDate" validate:"required,datetime=2006-01-02"`
	EndDate           string          `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ScheduledTransferUpdate carries the user-editable fields; nil means unchanged
type ScheduledTransferUpdate struct {
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Description       *string          `json:"description,omitempty" validate:"omitempty,max=255"`
	Frequency         *Frequency       `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	NextExecutionDate *string          `json:"nextExecutionDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate           *string          `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	IsActive          *bool            `json:"isActive,omitempty"`
}

// ScheduleOutcome is the per-schedule result of a due-check pass
type ScheduleOutcome struct {
	ScheduleID string `json:"scheduleId"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

type DueRunSummary struct {
	Executed int               `json:"executed"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Results  []ScheduleOutcome `json:"results"`
}
