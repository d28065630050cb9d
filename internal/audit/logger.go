package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Reference string            `json:"reference"`
	AccountID string            `json:"account_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    string            `json:"status"`
	Details   map[string]string `json:"details,omitempty"`
}

// Logger writes one structured record per money movement or scheduler decision.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.L()
	}
	return &Logger{log: log.Named("audit")}
}

func (a *Logger) LogTransfer(reference, fromAccount, toAccount string, amount decimal.Decimal, status string) {
	a.write(Event{
		Timestamp: time.Now(),
		EventType: "TRANSFER",
		Reference: reference,
		AccountID: fromAccount,
		Amount:    amount,
		Status:    status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *Logger) LogEntry(reference, accountID string, amount decimal.Decimal, status string) {
	a.write(Event{
		Timestamp: time.Now(),
		EventType: "LEDGER_ENTRY",
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    status,
	})
}

func (a *Logger) LogSchedule(scheduleID, operation, status, details string) {
	a.write(Event{
		Timestamp: time.Now(),
		EventType: operation,
		Reference: scheduleID,
		Status:    status,
		Details:   map[string]string{"details": details},
	})
}

func (a *Logger) LogError(reference, accountID string, err error) {
	a.write(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) write(event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("reference", event.Reference),
		zap.String("status", event.Status),
	}
	if event.AccountID != "" {
		fields = append(fields, zap.String("account_id", event.AccountID))
	}
	if !event.Amount.IsZero() {
		fields = append(fields, zap.String("amount", event.Amount.StringFixed(2)))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}
	a.log.Info("AUDIT", fields...)
}
