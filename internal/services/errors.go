package services

import (
	"errors"
	"fmt"
)

// Rejections. These are safe to show to the caller as-is.
var (
	ErrInvalidAmount        = errors.New("amount must be greater than 0 with at most 2 decimal places")
	ErrMissingDestination   = errors.New("either toAccountId or toAccountNumber must be provided")
	ErrAmbiguousDestination = errors.New("provide only one of toAccountId or toAccountNumber")
	ErrAccountNotFound      = errors.New("account not found")
	ErrForbidden            = errors.New("access denied")
	ErrSameAccount          = errors.New("cannot transfer to the same account")
	ErrAccountNotActive     = errors.New("account is not active")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrLimitExceeded        = errors.New("transfer would exceed account limit")
	ErrInvalidCategory      = errors.New("invalid transaction category")
	ErrInvalidStatus        = errors.New("invalid transaction status")
	ErrScheduleNotFound     = errors.New("scheduled transfer not found")
	ErrInvalidSchedule      = errors.New("invalid scheduled transfer")
	ErrScheduleNotDue       = errors.New("scheduled transfer already processed")
)

// ErrInfrastructure marks storage or transport failures. Its detail is logged,
// never returned to clients.
var ErrInfrastructure = errors.New("failed to process request")

// ErrorKind is the machine-readable reason attached to every failed operation.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindInvalidAmount        ErrorKind = "invalid_amount"
	KindMissingDestination   ErrorKind = "missing_destination"
	KindAmbiguousDestination ErrorKind = "ambiguous_destination"
	KindNotFound             ErrorKind = "not_found"
	KindForbidden            ErrorKind = "forbidden"
	KindSameAccount          ErrorKind = "same_account"
	KindAccountNotActive     ErrorKind = "account_not_active"
	KindInsufficientFunds    ErrorKind = "insufficient_funds"
	KindLimitExceeded        ErrorKind = "limit_exceeded"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindScheduleNotDue       ErrorKind = "schedule_not_due"
	KindInfrastructure       ErrorKind = "infrastructure"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrMissingDestination, KindMissingDestination},
	{ErrAmbiguousDestination, KindAmbiguousDestination},
	{ErrAccountNotFound, KindNotFound},
	{ErrScheduleNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrSameAccount, KindSameAccount},
	{ErrAccountNotActive, KindAccountNotActive},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrLimitExceeded, KindLimitExceeded},
	{ErrInvalidCategory, KindInvalidInput},
	{ErrInvalidStatus, KindInvalidInput},
	{ErrInvalidSchedule, KindInvalidInput},
	{ErrScheduleNotDue, KindScheduleNotDue},
}

// KindOf classifies err. Anything that is not a known rejection is infrastructure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInfrastructure
}

// PublicMessage returns the text a client may see for err.
func PublicMessage(err error) string {
	if KindOf(err) == KindInfrastructure {
		return ErrInfrastructure.Error()
	}
	return err.Error()
}

// asInfrastructure tags unknown failures so callers can still match them with
// errors.Is(err, ErrInfrastructure). Rejections pass through untouched.
func asInfrastructure(op string, err error) error {
	if err == nil || KindOf(err) != KindInfrastructure || errors.Is(err, ErrInfrastructure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}

func rejectf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
