package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/store"
	"github.com/shopspring/decimal"
)

// AlertService decides which of an account's active rules fire. It only reads.
type AlertService struct {
	store store.Store
}

func NewAlertService(st store.Store) *AlertService {
	return &AlertService{store: st}
}

// Evaluate checks low_balance rules against the current balance and, when amount
// is given, large_transaction rules against its absolute value.
func (s *AlertService) Evaluate(ctx context.Context, accountID string, amount *decimal.Decimal) ([]models.TriggeredAlert, error) {
	rules, err := s.store.ActiveAlertRules(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	account, err := s.store.FindAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rejectf(ErrAccountNotFound, "account %s", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	var triggered []models.TriggeredAlert
	for _, rule := range rules {
		var message string
		switch rule.Type {
		case models.AlertTypeLowBalance:
			if account.Balance.LessThanOrEqual(rule.Threshold) {
				message = fmt.Sprintf("Low balance alert: Account %s balance is $%s, below threshold of $%s",
					account.AccountNumber, account.Balance.StringFixed(2), rule.Threshold.StringFixed(2))
			}
		case models.AlertTypeLargeTransaction:
			if amount != nil && amount.Abs().GreaterThanOrEqual(rule.Threshold) {
				message = fmt.Sprintf("Large transaction alert: Transaction of $%s exceeds threshold of $%s",
					amount.Abs().StringFixed(2), rule.Threshold.StringFixed(2))
			}
		}
		if message == "" {
			continue
		}
		triggered = append(triggered, models.TriggeredAlert{
			Rule:          rule,
			AccountNumber: account.AccountNumber,
			Message:       message,
		})
	}
	return triggered, nil
}
