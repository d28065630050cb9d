package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbank/backend/internal/audit"
	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlertPublisher hands a committed movement to the alert pipeline. Implementations
// must not block on evaluation.
type AlertPublisher interface {
	Publish(ctx context.Context, event models.AlertEvent) error
}

// LedgerService is the only code path that writes ledger entries or balances.
type LedgerService struct {
	store     store.Store
	publisher AlertPublisher
	audit     *audit.Logger
	now       func() time.Time
}

func NewLedgerService(st store.Store, publisher AlertPublisher, auditLog *audit.Logger) *LedgerService {
	if auditLog == nil {
		auditLog = audit.NewLogger(nil)
	}
	return &LedgerService{
		store:     st,
		publisher: publisher,
		audit:     auditLog,
		now:       time.Now,
	}
}

// Posting is one signed movement against one account. Negative amounts are debits.
type Posting struct {
	Date        time.Time
	Description string
	Category    models.Category
	Amount      decimal.Decimal
	Status      models.EntryStatus
}

// CheckFunds reports whether debit may leave the account. Accounts without a limit
// may not go below zero; accounts with limit L may not go below -L.
func (s *LedgerService) CheckFunds(account *models.Account, debit decimal.Decimal) error {
	newBalance := account.Balance.Sub(debit)
	if !newBalance.LessThan(account.Floor()) {
		return nil
	}
	if account.Limit.Valid {
		return rejectf(ErrLimitExceeded, "balance %s, limit %s, requested %s",
			account.Balance.StringFixed(2), account.Limit.Decimal.StringFixed(2), debit.StringFixed(2))
	}
	return rejectf(ErrInsufficientFunds, "available %s, requested %s",
		account.Balance.StringFixed(2), debit.StringFixed(2))
}

// Post writes the entry and, for completed postings, the new balance. The account
// must have been locked in tx; its Balance is updated in place.
func (s *LedgerService) Post(ctx context.Context, tx store.Tx, account *models.Account, p Posting) (*models.LedgerEntry, error) {
	if p.Date.IsZero() {
		p.Date = dateOnly(s.now())
	}
	if p.Status == "" {
		p.Status = models.EntryStatusCompleted
	}

	entry := &models.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Date:      p.Date,
		Merchant:  p.Description,
		Category:  p.Category,
		Amount:    p.Amount,
		Status:    p.Status,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	if p.Status == models.EntryStatusCompleted {
		newBalance := account.Balance.Add(p.Amount)
		if err := tx.SetBalance(ctx, account.ID, newBalance); err != nil {
			return nil, err
		}
		account.Balance = newBalance
	}
	return entry, nil
}

// RecordTransaction writes a single manual entry. Completed entries move the balance
// under the same rules as transfers.
func (s *LedgerService) RecordTransaction(ctx context.Context, requesterID string, nt models.NewTransaction) (*models.LedgerEntry, error) {
	if nt.Amount.IsZero() || !nt.Amount.Equal(nt.Amount.Round(2)) {
		return nil, ErrInvalidAmount
	}
	if !nt.Category.Valid() || nt.Category == models.CategoryTransfer {
		return nil, rejectf(ErrInvalidCategory, "%q", nt.Category)
	}
	if nt.Status == "" {
		nt.Status = models.EntryStatusPending
	}
	if !nt.Status.Valid() {
		return nil, rejectf(ErrInvalidStatus, "%q", nt.Status)
	}
	if _, err := s.ownedAccount(ctx, requesterID, nt.AccountID); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	var entry *models.LedgerEntry
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockAccounts(ctx, nt.AccountID)
		if err != nil {
			return err
		}
		account := locked[nt.AccountID]

		if nt.Status == models.EntryStatusCompleted {
			if !account.IsActive() {
				return rejectf(ErrAccountNotActive, "account %s is %s", account.ID, account.Status)
			}
			if nt.Amount.IsNegative() {
				if err := s.CheckFunds(account, nt.Amount.Neg()); err != nil {
					return err
				}
			}
		}

		entry, err = s.Post(ctx, tx, account, Posting{
			Date:        nt.Date,
			Description: nt.Merchant,
			Category:    nt.Category,
			Amount:      nt.Amount,
			Status:      nt.Status,
		})
		return err
	})
	if err != nil {
		err = asInfrastructure("record transaction", err)
		if errors.Is(err, ErrInfrastructure) {
			s.audit.LogError("", nt.AccountID, err)
		}
		return nil, err
	}

	ledgerEntriesTotal.WithLabelValues(string(entry.Status)).Inc()
	s.audit.LogEntry(entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	if entry.Status == models.EntryStatusCompleted {
		s.notify(ctx, entry.AccountID, entry.Amount)
	}
	return entry, nil
}

// ListEntries returns the account's entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, requesterID, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	if _, err := s.ownedAccount(ctx, requesterID, accountID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, accountID, limit, offset)
	if err != nil {
		return nil, asInfrastructure("list entries", err)
	}
	return entries, nil
}

// Reconcile compares the stored balance with the sum of completed entries. It is a
// point-in-time read and takes no locks.
func (s *LedgerService) Reconcile(ctx context.Context, requesterID, accountID string) (*models.ReconcileReport, error) {
	account, err := s.ownedAccount(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.SumCompletedEntries(ctx, accountID)
	if err != nil {
		return nil, asInfrastructure("reconcile", err)
	}

	report := &models.ReconcileReport{
		AccountID: accountID,
		Balance:   account.Balance,
		LedgerSum: sum,
		Balanced:  account.Balance.Equal(sum),
	}
	if !report.Balanced {
		zap.L().Warn("Ledger out of balance",
			zap.String("account_id", accountID),
			zap.String("balance", account.Balance.StringFixed(2)),
			zap.String("ledger_sum", sum.StringFixed(2)))
	}
	return report, nil
}

func (s *LedgerService) ownedAccount(ctx context.Context, requesterID, accountID string) (*models.Account, error) {
	account, err := s.store.FindAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rejectf(ErrAccountNotFound, "account %s", accountID)
	}
	if err != nil {
		return nil, asInfrastructure("find account", err)
	}
	if account.UserID != requesterID {
		return nil, ErrForbidden
	}
	return account, nil
}

// notify runs after commit. Failures are logged and never reach the caller.
func (s *LedgerService) notify(ctx context.Context, accountID string, amount decimal.Decimal) {
	if s.publisher == nil {
		return
	}
	event := models.AlertEvent{
		AccountID:  accountID,
		Amount:     &amount,
		OccurredAt: s.now(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		zap.L().Warn("Failed to publish alert event",
			zap.String("account_id", accountID),
			zap.Error(err))
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
