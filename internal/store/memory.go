package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Compile-time check: *Memory must satisfy Store.
var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Units of work are serialized and run against a
// cloned state that replaces the live state only when the unit succeeds.
type Memory struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]*fault
	calls  map[string]int
}

type fault struct {
	skip int
	err  error
}

type memState struct {
	accounts  map[string]models.Account
	entries   []models.LedgerEntry
	schedules map[string]models.ScheduledTransfer
	alerts    map[string]models.AlertRule
}

func NewMemory() *Memory {
	return &Memory{
		state: &memState{
			accounts:  map[string]models.Account{},
			schedules: map[string]models.ScheduledTransfer{},
			alerts:    map[string]models.AlertRule{},
		},
		faults: map[string]*fault{},
		calls:  map[string]int{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:  make(map[string]models.Account, len(s.accounts)),
		entries:   append([]models.LedgerEntry(nil), s.entries...),
		schedules: make(map[string]models.ScheduledTransfer, len(s.schedules)),
		alerts:    make(map[string]models.AlertRule, len(s.alerts)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	return c
}

// InjectFault makes the named Tx operation (or "Commit") return err once it has
// succeeded skip times. Used to simulate infrastructure failures mid-unit.
func (m *Memory) InjectFault(op string, skip int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = &fault{skip: skip, err: err}
	m.calls[op] = 0
}

func (m *Memory) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = map[string]*fault{}
	m.calls = map[string]int{}
}

// check must be called with m.mu held.
func (m *Memory) check(op string) error {
	f, ok := m.faults[op]
	if !ok {
		return nil
	}
	n := m.calls[op]
	m.calls[op] = n + 1
	if n >= f.skip {
		delete(m.faults, op)
		return f.err
	}
	return nil
}

// PutAccount seeds or replaces an account. Account creation belongs to the CRUD
// layer, so this bypasses the ledger.
func (m *Memory) PutAccount(a models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
		a.UpdatedAt = a.CreatedAt
	}
	m.state.accounts[a.ID] = a
}

func (m *Memory) PutAlertRule(r models.AlertRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.alerts[r.ID] = r
}

// Entries returns every ledger entry for the account in insertion order.
func (m *Memory) Entries(accountID string) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.state.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	normalized, bare := accountNumberQuery(number)

	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []models.Account
	for _, a := range m.state.accounts {
		if a.AccountNumber == normalized || (bare && a.AccountNumber == maskPrefix+normalized) {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var match *models.Account
	if bare {
		match = preferMasked(candidates, normalized)
	} else if len(candidates) > 0 {
		match = &candidates[0]
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

func (m *Memory) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := []models.LedgerEntry{}
	for i := len(m.state.entries) - 1; i >= 0; i-- {
		if m.state.entries[i].AccountID == accountID {
			entries = append(entries, m.state.entries[i])
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})

	if offset >= len(entries) {
		return []models.LedgerEntry{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *Memory) SumCompletedEntries(ctx context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := decimal.Zero
	for _, e := range m.state.entries {
		if e.AccountID == accountID && e.Status == models.EntryStatusCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (m *Memory) CreateSchedule(ctx context.Context, s *models.ScheduledTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.state.schedules[s.ID] = *s
	return nil
}

func (m *Memory) FindScheduleByID(ctx context.Context, id string) (*models.ScheduledTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) ListSchedulesByUser(ctx context.Context, userID string) ([]models.ScheduledTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.ScheduledTransfer{}
	for _, s := range m.state.schedules {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (m *Memory) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.schedules, id)
	return nil
}

func (m *Memory) FindDueSchedules(ctx context.Context, today time.Time) ([]models.ScheduledTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := []models.ScheduledTransfer{}
	for _, s := range m.state.schedules {
		if s.IsDue(today) {
			due = append(due, s)
		}
	}
	sortSchedules(due)
	return due, nil
}

func sortSchedules(s []models.ScheduledTransfer) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].NextExecutionDate.Equal(s[j].NextExecutionDate) {
			return s[i].ID < s[j].ID
		}
		return s[i].NextExecutionDate.Before(s[j].NextExecutionDate)
	})
}

func (m *Memory) ActiveAlertRules(ctx context.Context, accountID string) ([]models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := []models.AlertRule{}
	for _, r := range m.state.alerts {
		if r.AccountID == accountID && r.IsActive {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{m: m, state: work}); err != nil {
		return err
	}
	if err := m.check("Commit"); err != nil {
		return err
	}
	m.state = work
	return nil
}

// memTx runs with Memory.mu held by WithinTx.
type memTx struct {
	m     *Memory
	state *memState
}

func (t *memTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	if err := t.m.check("LockAccounts"); err != nil {
		return nil, err
	}
	locked := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		a, ok := t.state.accounts[id]
		if !ok {
			return nil, ErrNotFound
		}
		locked[id] = &a
	}
	return locked, nil
}

func (t *memTx) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if err := t.m.check("SetBalance"); err != nil {
		return err
	}
	a, ok := t.state.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.Balance = balance
	a.UpdatedAt = time.Now()
	t.state.accounts[accountID] = a
	return nil
}

func (t *memTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	if err := t.m.check("InsertEntry"); err != nil {
		return err
	}
	e.CreatedAt = time.Now()
	t.state.entries = append(t.state.entries, *e)
	return nil
}

func (t *memTx) LockSchedule(ctx context.Context, id string) (*models.ScheduledTransfer, error) {
	if err := t.m.check("LockSchedule"); err != nil {
		return nil, err
	}
	s, ok := t.state.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) SaveScheduleProgress(ctx context.Context, id string, next time.Time, active bool) error {
	if err := t.m.check("SaveScheduleProgress"); err != nil {
		return err
	}
	s, ok := t.state.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.NextExecutionDate = next
	s.IsActive = active
	s.UpdatedAt = time.Now()
	t.state.schedules[id] = s
	return nil
}

func (t *memTx) UpdateSchedule(ctx context.Context, s *models.ScheduledTransfer) error {
	if err := t.m.check("UpdateSchedule"); err != nil {
		return err
	}
	if _, ok := t.state.schedules[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now()
	t.state.schedules[s.ID] = *s
	return nil
}
