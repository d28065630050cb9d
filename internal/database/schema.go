package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent so it can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id              VARCHAR(64) PRIMARY KEY,
		user_id         VARCHAR(64) NOT NULL,
		name            VARCHAR(255) NOT NULL,
		type            VARCHAR(32) NOT NULL,
		balance         NUMERIC(18, 2) NOT NULL DEFAULT 0,
		currency        VARCHAR(3) NOT NULL DEFAULT 'USD',
		status          VARCHAR(16) NOT NULL DEFAULT 'active',
		account_number  VARCHAR(32) NOT NULL,
		"limit"         NUMERIC(18, 2),
		is_highlighted  BOOLEAN NOT NULL DEFAULT false,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_account_number ON accounts (account_number)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id          VARCHAR(64) PRIMARY KEY,
		account_id  VARCHAR(64) NOT NULL REFERENCES accounts (id),
		date        DATE NOT NULL,
		merchant    VARCHAR(255) NOT NULL,
		category    VARCHAR(32) NOT NULL,
		amount      NUMERIC(18, 2) NOT NULL,
		status      VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions (account_id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS scheduled_transfers (
		id                   VARCHAR(64) PRIMARY KEY,
		user_id              VARCHAR(64) NOT NULL,
		from_account_id      VARCHAR(64) NOT NULL REFERENCES accounts (id),
		to_account_id        VARCHAR(64) NOT NULL REFERENCES accounts (id),
		amount               NUMERIC(18, 2) NOT NULL,
		description          VARCHAR(255),
		frequency            VARCHAR(16) NOT NULL,
		next_execution_date  DATE NOT NULL,
		end_date             DATE,
		is_active            BOOLEAN NOT NULL DEFAULT true,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_transfers_due ON scheduled_transfers (next_execution_date) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id          VARCHAR(64) PRIMARY KEY,
		user_id     VARCHAR(64) NOT NULL,
		account_id  VARCHAR(64) NOT NULL REFERENCES accounts (id),
		type        VARCHAR(32) NOT NULL,
		threshold   NUMERIC(18, 2) NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT true
	)`,
}

// InitSchema creates the ledger tables when they do not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
