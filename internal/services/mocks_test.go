package services

import (
	"context"
	"testing"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event models.AlertEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// failingStore lets read-side calls fail while the rest of the store works.
type failingStore struct {
	store.Store
	findErr error
}

func (f *failingStore) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Store.FindAccountByID(ctx, id)
}

type testEnv struct {
	store     *store.Memory
	publisher *MockPublisher
	ledger    *LedgerService
	transfers *TransferService
	schedules *ScheduledTransferService
	alerts    *AlertService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	ledger := NewLedgerService(st, pub, nil)
	transfers := NewTransferService(st, ledger)
	return &testEnv{
		store:     st,
		publisher: pub,
		ledger:    ledger,
		transfers: transfers,
		schedules: NewScheduledTransferService(st, transfers, time.UTC),
		alerts:    NewAlertService(st),
	}
}

func (e *testEnv) putAccount(id, userID, number, balance string) models.Account {
	a := models.Account{
		ID:            id,
		UserID:        userID,
		Name:          "Account " + id,
		Type:          "checking",
		Balance:       decimal.RequireFromString(balance),
		Currency:      "USD",
		Status:        models.AccountStatusActive,
		AccountNumber: number,
	}
	e.store.PutAccount(a)
	return a
}

func (e *testEnv) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := e.store.FindAccountByID(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}
