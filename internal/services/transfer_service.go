package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/store"
	"go.uber.org/zap"
)

type TransferService struct {
	store  store.Store
	ledger *LedgerService
}

func NewTransferService(st store.Store, ledger *LedgerService) *TransferService {
	return &TransferService{
		store:  st,
		ledger: ledger,
	}
}

// transferPlan is the outcome of validation, before anything is locked.
type transferPlan struct {
	fromID string
	toID   string
}

// ExecuteTransfer moves req.Amount from one of the requester's accounts to either
// another of their accounts (ToAccountID) or a peer account (ToAccountNumber).
// Both legs, both balances and nothing else commit together, or nothing does.
func (s *TransferService) ExecuteTransfer(ctx context.Context, requesterID string, req models.TransferRequest) (*models.TransferResult, error) {
	return s.execute(ctx, sourceManual, requesterID, req, nil)
}

// execute runs a transfer. inUnit, when set, runs inside the same atomic unit
// after both legs are written; its error rolls the transfer back.
func (s *TransferService) execute(ctx context.Context, source, requesterID string, req models.TransferRequest, inUnit func(ctx context.Context, tx store.Tx) error) (*models.TransferResult, error) {
	start := time.Now()
	result, err := s.run(ctx, requesterID, req, inUnit)

	transferDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	transfersTotal.WithLabelValues(source, outcomeLabel(err)).Inc()

	if err != nil {
		if errors.Is(err, ErrInfrastructure) {
			s.ledger.audit.LogError("", req.FromAccountID, err)
			zap.L().Error("Transfer failed",
				zap.String("source", source),
				zap.String("from_account_id", req.FromAccountID),
				zap.Error(err))
		}
		return nil, err
	}

	s.ledger.audit.LogTransfer(result.FromTransaction.ID, result.FromAccount.ID, result.ToAccount.ID,
		result.ToTransaction.Amount, "SUCCESS")
	s.ledger.notify(ctx, result.FromAccount.ID, result.FromTransaction.Amount)
	return result, nil
}

func (s *TransferService) run(ctx context.Context, requesterID string, req models.TransferRequest, inUnit func(ctx context.Context, tx store.Tx) error) (*models.TransferResult, error) {
	plan, err := s.validate(ctx, requesterID, req)
	if err != nil {
		return nil, err
	}

	// Once validated the unit runs to commit or rollback; caller cancellation
	// no longer reaches it.
	ctx = context.WithoutCancel(ctx)

	var result *models.TransferResult
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockAccounts(ctx, plan.fromID, plan.toID)
		if err != nil {
			return err
		}
		from, to := locked[plan.fromID], locked[plan.toID]

		// Balances and status may have moved since validation.
		if !from.IsActive() {
			return rejectf(ErrAccountNotActive, "source account %s is %s", from.ID, from.Status)
		}
		if !to.IsActive() {
			return rejectf(ErrAccountNotActive, "destination account %s is %s", to.ID, to.Status)
		}
		if err := s.ledger.CheckFunds(from, req.Amount); err != nil {
			return err
		}

		fromDesc, toDesc := transferDescriptions(req.Description, from, to)
		debit, err := s.ledger.Post(ctx, tx, from, Posting{
			Description: fromDesc,
			Category:    models.CategoryTransfer,
			Amount:      req.Amount.Neg(),
			Status:      models.EntryStatusCompleted,
		})
		if err != nil {
			return err
		}
		credit, err := s.ledger.Post(ctx, tx, to, Posting{
			Description: toDesc,
			Category:    models.CategoryTransfer,
			Amount:      req.Amount,
			Status:      models.EntryStatusCompleted,
		})
		if err != nil {
			return err
		}

		if inUnit != nil {
			if err := inUnit(ctx, tx); err != nil {
				return err
			}
		}

		result = &models.TransferResult{
			FromTransaction: *debit,
			ToTransaction:   *credit,
			FromAccount:     *from,
			ToAccount:       *to,
		}
		return nil
	})
	if err != nil {
		return nil, asInfrastructure("transfer", err)
	}
	return result, nil
}

// validate applies the checks in order: amount, destination form, source ownership,
// destination resolution, account status, then funds.
func (s *TransferService) validate(ctx context.Context, requesterID string, req models.TransferRequest) (*transferPlan, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, ErrInvalidAmount
	}

	toID := strings.TrimSpace(req.ToAccountID)
	toNumber := strings.TrimSpace(req.ToAccountNumber)
	switch {
	case toID != "" && toNumber != "":
		return nil, ErrAmbiguousDestination
	case toID == "" && toNumber == "":
		return nil, ErrMissingDestination
	}

	from, err := s.store.FindAccountByID(ctx, req.FromAccountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rejectf(ErrAccountNotFound, "source account %s", req.FromAccountID)
	}
	if err != nil {
		return nil, asInfrastructure("find source account", err)
	}
	if from.UserID != requesterID {
		return nil, rejectf(ErrForbidden, "source account belongs to another user")
	}

	to, err := s.resolveDestination(ctx, requesterID, toID, toNumber)
	if err != nil {
		return nil, err
	}
	if to.ID == from.ID {
		return nil, ErrSameAccount
	}

	if !from.IsActive() {
		return nil, rejectf(ErrAccountNotActive, "source account %s is %s", from.ID, from.Status)
	}
	if !to.IsActive() {
		return nil, rejectf(ErrAccountNotActive, "destination account is %s", to.Status)
	}

	if err := s.ledger.CheckFunds(from, req.Amount); err != nil {
		return nil, err
	}

	return &transferPlan{fromID: from.ID, toID: to.ID}, nil
}

func (s *TransferService) resolveDestination(ctx context.Context, requesterID, toID, toNumber string) (*models.Account, error) {
	if toID != "" {
		to, err := s.store.FindAccountByID(ctx, toID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, rejectf(ErrAccountNotFound, "destination account %s", toID)
		}
		if err != nil {
			return nil, asInfrastructure("find destination account", err)
		}
		if to.UserID != requesterID {
			return nil, rejectf(ErrForbidden, "destination account belongs to another user")
		}
		return to, nil
	}

	to, err := s.store.FindAccountByNumber(ctx, toNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rejectf(ErrAccountNotFound, "no account matches %s", toNumber)
	}
	if err != nil {
		return nil, asInfrastructure("find destination account", err)
	}
	return to, nil
}

func transferDescriptions(description string, from, to *models.Account) (string, string) {
	if description != "" {
		return description, description
	}
	return fmt.Sprintf("Transfer to %s", to.AccountNumber), fmt.Sprintf("Transfer from %s", from.AccountNumber)
}
