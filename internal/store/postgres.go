package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Compile-time check: *Postgres must satisfy Store.
var _ Store = (*Postgres)(nil)

const (
	accountColumns  = `id, user_id, name, type, balance, currency, status, account_number, "limit", is_highlighted, created_at, updated_at`
	entryColumns    = `id, account_id, date, merchant, category, amount, status, created_at`
	scheduleColumns = `id, user_id, from_account_id, to_account_id, amount, description, frequency, next_execution_date, end_date, is_active, created_at, updated_at`
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a      models.Account
		status string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.Currency, &status,
		&a.AccountNumber, &a.Limit, &a.IsHighlighted, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = models.AccountStatus(status)
	return &a, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		e        models.LedgerEntry
		category string
		status   string
	)
	if err := row.Scan(&e.ID, &e.AccountID, &e.Date, &e.Merchant, &category, &e.Amount, &status, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Category = models.Category(category)
	e.Status = models.EntryStatus(status)
	return &e, nil
}

func scanSchedule(row rowScanner) (*models.ScheduledTransfer, error) {
	var (
		s           models.ScheduledTransfer
		description sql.NullString
		frequency   string
		endDate     sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.FromAccountID, &s.ToAccountID, &s.Amount, &description,
		&frequency, &s.NextExecutionDate, &endDate, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Description = description.String
	s.Frequency = models.Frequency(frequency)
	if endDate.Valid {
		end := endDate.Time
		s.EndDate = &end
	}
	return &s, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (p *Postgres) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(p.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (p *Postgres) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	normalized, bare := accountNumberQuery(number)
	if !bare {
		return scanAccount(p.db.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, normalized))
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1 OR account_number = $2 ORDER BY created_at`,
		normalized, maskPrefix+normalized)
	if err != nil {
		return nil, fmt.Errorf("account number lookup failed: %w", err)
	}
	defer rows.Close()

	var candidates []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	match := preferMasked(candidates, normalized)
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

func (p *Postgres) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM transactions
		WHERE account_id = $1 ORDER BY date DESC, created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (p *Postgres) SumCompletedEntries(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = $1 AND status = 'completed'`,
		accountID).Scan(&sum)
	return sum, err
}

func (p *Postgres) CreateSchedule(ctx context.Context, s *models.ScheduledTransfer) error {
	return p.db.QueryRowContext(ctx, `
		INSERT INTO scheduled_transfers (id, user_id, from_account_id, to_account_id, amount, description, frequency, next_execution_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.FromAccountID, s.ToAccountID, s.Amount, nullableString(s.Description),
		string(s.Frequency), s.NextExecutionDate, nullableTime(s.EndDate), s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (p *Postgres) FindScheduleByID(ctx context.Context, id string) (*models.ScheduledTransfer, error) {
	return scanSchedule(p.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_transfers WHERE id = $1`, id))
}

func (p *Postgres) ListSchedulesByUser(ctx context.Context, userID string) ([]models.ScheduledTransfer, error) {
	return p.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_transfers WHERE user_id = $1 ORDER BY next_execution_date ASC`, userID)
}

func (p *Postgres) DeleteSchedule(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM scheduled_transfers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (p *Postgres) FindDueSchedules(ctx context.Context, today time.Time) ([]models.ScheduledTransfer, error) {
	return p.querySchedules(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_transfers
		WHERE is_active = true AND next_execution_date <= $1 AND (end_date IS NULL OR end_date >= $1)
		ORDER BY next_execution_date ASC, id ASC`, today)
}

func (p *Postgres) querySchedules(ctx context.Context, query string, args ...any) ([]models.ScheduledTransfer, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := []models.ScheduledTransfer{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

func (p *Postgres) ActiveAlertRules(ctx context.Context, accountID string) ([]models.AlertRule, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, account_id, type, threshold, is_active FROM alerts WHERE account_id = $1 AND is_active = true`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []models.AlertRule{}
	for rows.Next() {
		var (
			r       models.AlertRule
			ruleTyp string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.AccountID, &ruleTyp, &r.Threshold, &r.IsActive); err != nil {
			return nil, err
		}
		r.Type = models.AlertType(ruleTyp)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	// Lock accounts in consistent order to prevent deadlocks
	ordered := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Strings(ordered)

	locked := make(map[string]*models.Account, len(ordered))
	for _, id := range ordered {
		account, err := scanAccount(t.tx.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}

func (t *pgTx) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		balance, accountID)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (t *pgTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO transactions (id, account_id, date, merchant, category, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		e.ID, e.AccountID, e.Date, e.Merchant, string(e.Category), e.Amount, string(e.Status),
	).Scan(&e.CreatedAt)
}

func (t *pgTx) LockSchedule(ctx context.Context, id string) (*models.ScheduledTransfer, error) {
	return scanSchedule(t.tx.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_transfers WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SaveScheduleProgress(ctx context.Context, id string, next time.Time, active bool) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE scheduled_transfers SET next_execution_date = $1, is_active = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		next, active, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (t *pgTx) UpdateSchedule(ctx context.Context, s *models.ScheduledTransfer) error {
	err := t.tx.QueryRowContext(ctx, `
		UPDATE scheduled_transfers
		SET amount = $1, description = $2, frequency = $3, next_execution_date = $4, end_date = $5, is_active = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $7
		RETURNING updated_at`,
		s.Amount, nullableString(s.Description), string(s.Frequency), s.NextExecutionDate,
		nullableTime(s.EndDate), s.IsActive, s.ID,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
