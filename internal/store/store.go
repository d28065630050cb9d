// Package store holds the persistence boundary for accounts, ledger entries,
// scheduled transfers and alert rules. Money-moving writes are only reachable
// through a Tx obtained from Store.WithinTx.
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Store is the read side plus schedule bookkeeping. Everything that changes a
// balance goes through WithinTx.
type Store interface {
	// --- Accounts ---
	FindAccountByID(ctx context.Context, id string) (*models.Account, error)
	FindAccountByNumber(ctx context.Context, number string) (*models.Account, error)

	// --- Ledger ---
	ListEntries(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error)
	SumCompletedEntries(ctx context.Context, accountID string) (decimal.Decimal, error)

	// --- Scheduled transfers ---
	CreateSchedule(ctx context.Context, s *models.ScheduledTransfer) error
	FindScheduleByID(ctx context.Context, id string) (*models.ScheduledTransfer, error)
	ListSchedulesByUser(ctx context.Context, userID string) ([]models.ScheduledTransfer, error)
	DeleteSchedule(ctx context.Context, id string) error
	FindDueSchedules(ctx context.Context, today time.Time) ([]models.ScheduledTransfer, error)

	// --- Alerts ---
	ActiveAlertRules(ctx context.Context, accountID string) ([]models.AlertRule, error)

	// WithinTx runs fn as one atomic unit. A non-nil error from fn rolls back every
	// write made through the Tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of an atomic unit.
type Tx interface {
	// LockAccounts locks the given account rows in ascending id order and returns
	// their current state keyed by id.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error)
	SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	LockSchedule(ctx context.Context, id string) (*models.ScheduledTransfer, error)
	SaveScheduleProgress(ctx context.Context, id string, next time.Time, active bool) error
	// UpdateSchedule writes the user-editable fields of a schedule locked in this unit.
	UpdateSchedule(ctx context.Context, s *models.ScheduledTransfer) error
}

var lastFourDigits = regexp.MustCompile(`^\d{4}$`)

const maskPrefix = "****"

// accountNumberQuery classifies a peer lookup. A masked number (****1234) or any
// other non four-digit input is matched exactly; bare four digits match either the
// digits themselves or their masked form.
func accountNumberQuery(raw string) (normalized string, bare bool) {
	normalized = strings.TrimSpace(raw)
	if strings.HasPrefix(normalized, maskPrefix) {
		return normalized, false
	}
	return normalized, lastFourDigits.MatchString(normalized)
}

// preferMasked picks the ****digits account when a bare lookup is ambiguous,
// falling back to the first candidate.
func preferMasked(candidates []models.Account, digits string) *models.Account {
	if len(candidates) == 0 {
		return nil
	}
	for i := range candidates {
		if candidates[i].AccountNumber == maskPrefix+digits {
			return &candidates[i]
		}
	}
	return &candidates[0]
}
