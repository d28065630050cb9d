package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pocketbank/backend/internal/middleware"
	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/scheduler"
	"github.com/pocketbank/backend/internal/services"
	"github.com/pocketbank/backend/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserHeader = "X-Test-User"

type testServer struct {
	store  *store.Memory
	router http.Handler
}

// fakeAuth stands in for the JWT middleware.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(testUserHeader); userID != "" {
			r = r.WithContext(middleware.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestServer(t *testing.T, runner DueRunner) *testServer {
	t.Helper()
	st := store.NewMemory()
	for _, a := range []models.Account{
		{ID: "acc-1", UserID: "user-1", Balance: decimal.RequireFromString("100.00"), AccountNumber: "****1234"},
		{ID: "acc-2", UserID: "user-1", Balance: decimal.Zero, AccountNumber: "****5678"},
		{ID: "acc-3", UserID: "user-2", Balance: decimal.Zero, AccountNumber: "****9999"},
		{ID: "acc-4", UserID: "user-1", Balance: decimal.Zero, AccountNumber: "****4444"},
	} {
		a.Name = "Account " + a.ID
		a.Type = "checking"
		a.Currency = "USD"
		a.Status = models.AccountStatusActive
		st.PutAccount(a)
	}

	ledger := services.NewLedgerService(st, nil, nil)
	transfers := services.NewTransferService(st, ledger)
	schedules := services.NewScheduledTransferService(st, transfers, time.UTC)
	if runner == nil {
		runner = scheduler.NewRunner(schedules, nil, time.Hour)
	}

	r := chi.NewRouter()
	r.Use(fakeAuth)
	r.Post("/transfers", NewTransferHandler(transfers).CreateTransfer)
	ledgerHandler := NewLedgerHandler(ledger)
	r.Post("/transactions", ledgerHandler.RecordTransaction)
	r.Get("/accounts/{id}/transactions", ledgerHandler.ListTransactions)
	r.Get("/accounts/{id}/reconcile", ledgerHandler.Reconcile)
	r.Route("/scheduled-transfers", NewScheduledTransferHandler(schedules, runner).Routes)

	return &testServer{store: st, router: r}
}

func (s *testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestTransferHandler_CreateTransfer(t *testing.T) {
	t.Run("own account transfer", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := srv.do(t, http.MethodPost, "/transfers", "user-1",
			`{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"25.00"}`)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		result := decodeBody[models.TransferResult](t, rec)
		assert.True(t, result.FromAccount.Balance.Equal(decimal.RequireFromString("75")))
		assert.True(t, result.ToAccount.Balance.Equal(decimal.RequireFromString("25")))
		assert.True(t, result.FromTransaction.Amount.Equal(decimal.RequireFromString("-25")))
		assert.Equal(t, "Transfer to ****5678", result.FromTransaction.Merchant)
	})

	t.Run("peer transfer by account number", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := srv.do(t, http.MethodPost, "/transfers", "user-1",
			`{"fromAccountId":"acc-1","toAccountNumber":"9999","amount":10}`)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		result := decodeBody[models.TransferResult](t, rec)
		assert.Equal(t, "acc-3", result.ToAccount.ID)
	})

	tests := []struct {
		name   string
		userID string
		body   string
		status int
		kind   services.ErrorKind
	}{
		{name: "unauthenticated", body: `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"1"}`, status: http.StatusUnauthorized},
		{name: "malformed json", userID: "user-1", body: `{"fromAccountId":`, status: http.StatusBadRequest},
		{name: "unknown field", userID: "user-1", body: `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"1","memo":"x"}`, status: http.StatusBadRequest},
		{name: "missing source", userID: "user-1", body: `{"toAccountId":"acc-2","amount":"1"}`, status: http.StatusBadRequest},
		{name: "zero amount", userID: "user-1", body: `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"0"}`, status: http.StatusBadRequest, kind: services.KindInvalidAmount},
		{name: "no destination", userID: "user-1", body: `{"fromAccountId":"acc-1","amount":"1"}`, status: http.StatusBadRequest, kind: services.KindMissingDestination},
		{name: "same account", userID: "user-1", body: `{"fromAccountId":"acc-1","toAccountId":"acc-1","amount":"1"}`, status: http.StatusBadRequest, kind: services.KindSameAccount},
		{name: "same account by number", userID: "user-1", body: `{"fromAccountId":"acc-1","toAccountNumber":"1234","amount":"1"}`, status: http.StatusBadRequest, kind: services.KindSameAccount},
		{name: "insufficient funds", userID: "user-1", body: `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"500"}`, status: http.StatusUnprocessableEntity, kind: services.KindInsufficientFunds},
		{name: "not the owner", userID: "user-2", body: `{"fromAccountId":"acc-1","toAccountId":"acc-3","amount":"1"}`, status: http.StatusForbidden, kind: services.KindForbidden},
		{name: "unknown destination", userID: "user-1", body: `{"fromAccountId":"acc-1","toAccountNumber":"0000","amount":"1"}`, status: http.StatusNotFound, kind: services.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rec := srv.do(t, http.MethodPost, "/transfers", tt.userID, tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeBody[services.ErrorResponse](t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
		})
	}

	t.Run("infrastructure failure hides details", func(t *testing.T) {
		srv := newTestServer(t, nil)
		srv.store.InjectFault("LockAccounts", 0, errors.New("pq: connection reset by peer"))

		rec := srv.do(t, http.MethodPost, "/transfers", "user-1",
			`{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"1"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"failed to process request","kind":"infrastructure"}`, rec.Body.String())
	})
}

func TestLedgerHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/transactions", "user-1",
		`{"account_id":"acc-4","date":"2024-01-15T00:00:00Z","merchant":"Payroll","category":"salary","amount":"50.00","status":"completed"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[models.LedgerEntry](t, rec)
	assert.Equal(t, models.EntryStatusCompleted, entry.Status)

	rec = srv.do(t, http.MethodPost, "/transactions", "user-1",
		`{"account_id":"acc-4","merchant":"Cafe","category":"dining","amount":"-4.50"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("list", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/accounts/acc-4/transactions", "user-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]models.LedgerEntry](t, rec), 2)

		rec = srv.do(t, http.MethodGet, "/accounts/acc-4/transactions?limit=1&offset=1", "user-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]models.LedgerEntry](t, rec), 1)

		rec = srv.do(t, http.MethodGet, "/accounts/acc-2/transactions", "user-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("bad paging", func(t *testing.T) {
		for _, q := range []string{"limit=abc", "limit=0", "offset=-1"} {
			rec := srv.do(t, http.MethodGet, "/accounts/acc-4/transactions?"+q, "user-1", "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("reconcile", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/accounts/acc-4/reconcile", "user-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		report := decodeBody[models.ReconcileReport](t, rec)
		assert.True(t, report.Balanced)
		assert.True(t, report.Balance.Equal(decimal.RequireFromString("50")))

		rec = srv.do(t, http.MethodGet, "/accounts/acc-4/reconcile", "user-2", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("transfer category is reserved", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/transactions", "user-1",
			`{"account_id":"acc-4","merchant":"Sneaky","category":"transfer","amount":"5"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, services.KindInvalidInput, decodeBody[services.ErrorResponse](t, rec).Kind)
	})
}

func TestScheduledTransferHandler_CRUD(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/scheduled-transfers", "user-1",
		`{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"10.00","frequency":"weekly","nextExecutionDate":"2099-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[models.ScheduledTransfer](t, rec)
	assert.True(t, created.IsActive)
	path := "/scheduled-transfers/" + created.ID

	rec = srv.do(t, http.MethodGet, "/scheduled-transfers", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.ScheduledTransfer](t, rec), 1)

	rec = srv.do(t, http.MethodGet, "/scheduled-transfers", "user-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, path, "user-2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPut, path, "user-1", `{"amount":"12.50","isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[models.ScheduledTransfer](t, rec)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("12.50")))
	assert.False(t, updated.IsActive)

	rec = srv.do(t, http.MethodDelete, path, "user-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, path, "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduledTransferHandler_CreateValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	bodies := map[string]string{
		"bad frequency": `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"10","frequency":"yearly","nextExecutionDate":"2099-01-01"}`,
		"bad date":      `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"10","frequency":"daily","nextExecutionDate":"01/01/2099"}`,
		"past date":     `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"10","frequency":"daily","nextExecutionDate":"2000-01-01"}`,
		"zero amount":   `{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"0","frequency":"daily","nextExecutionDate":"2099-01-01"}`,
		"same account":  `{"fromAccountId":"acc-1","toAccountId":"acc-1","amount":"10","frequency":"daily","nextExecutionDate":"2099-01-01"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/scheduled-transfers", "user-1", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestScheduledTransferHandler_ExecuteDue(t *testing.T) {
	t.Run("runs due schedules", func(t *testing.T) {
		srv := newTestServer(t, nil)
		today := time.Now().UTC().Format("2006-01-02")
		rec := srv.do(t, http.MethodPost, "/scheduled-transfers", "user-1",
			`{"fromAccountId":"acc-1","toAccountId":"acc-2","amount":"10.00","frequency":"daily","nextExecutionDate":"`+today+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = srv.do(t, http.MethodPost, "/scheduled-transfers/execute-due", "user-1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		summary := decodeBody[models.DueRunSummary](t, rec)
		assert.Equal(t, 1, summary.Executed)
		assert.Zero(t, summary.Failed)
		require.Len(t, summary.Results, 1)
		assert.True(t, summary.Results[0].Success)

		// Advanced to tomorrow, so a second pass finds nothing.
		rec = srv.do(t, http.MethodPost, "/scheduled-transfers/execute-due", "user-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, decodeBody[models.DueRunSummary](t, rec).Executed)
	})

	t.Run("pass already running", func(t *testing.T) {
		srv := newTestServer(t, busyRunner{})
		rec := srv.do(t, http.MethodPost, "/scheduled-transfers/execute-due", "user-1", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := srv.do(t, http.MethodPost, "/scheduled-transfers/execute-due", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type busyRunner struct{}

func (busyRunner) RunOnce(ctx context.Context) (*models.DueRunSummary, error) {
	return nil, scheduler.ErrPassInProgress
}
