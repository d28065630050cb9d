package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSchema(t *testing.T) {
	t.Run("applies every statement", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.MatchExpectationsInOrder(true)
		for range schema {
			mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
		}

		require.NoError(t, InitSchema(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnError(errors.New("permission denied"))

		err = InitSchema(context.Background(), db)
		assert.ErrorContains(t, err, "permission denied")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetConfig(t *testing.T) {
	cfg := GetConfig()
	assert.Equal(t, "pocketbank", cfg.Name)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Zero(t, cfg.StatementTimeout)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=password dbname=pocketbank sslmode=disable", cfg.DSN())
}

func bindPoolEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for key, value := range values {
		viper.BindEnv("database."+strings.ToLower(key), "DATABASE_"+key)
		t.Setenv("DATABASE_"+key, value)
	}
}

func TestGetConfig_PoolFromEnv(t *testing.T) {
	t.Run("overrides reach the config and dsn", func(t *testing.T) {
		bindPoolEnv(t, map[string]string{
			"MAX_OPEN_CONNS":    "40",
			"MAX_IDLE_CONNS":    "10",
			"CONN_MAX_LIFETIME": "90s",
			"STATEMENT_TIMEOUT": "2500ms",
		})

		cfg := GetConfig()
		assert.Equal(t, 40, cfg.MaxOpenConns)
		assert.Equal(t, 10, cfg.MaxIdleConns)
		assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
		assert.Equal(t, 2500*time.Millisecond, cfg.StatementTimeout)
		assert.True(t, strings.HasSuffix(cfg.DSN(), " sslmode=disable statement_timeout=2500"), cfg.DSN())
	})

	t.Run("idle pool is clamped to the open limit", func(t *testing.T) {
		bindPoolEnv(t, map[string]string{
			"MAX_OPEN_CONNS": "4",
			"MAX_IDLE_CONNS": "12",
		})

		cfg := GetConfig()
		assert.Equal(t, 4, cfg.MaxOpenConns)
		assert.Equal(t, 4, cfg.MaxIdleConns)
	})

	t.Run("unlimited open keeps the idle setting", func(t *testing.T) {
		bindPoolEnv(t, map[string]string{
			"MAX_OPEN_CONNS": "0",
			"MAX_IDLE_CONNS": "12",
		})

		cfg := GetConfig()
		assert.Equal(t, 0, cfg.MaxOpenConns)
		assert.Equal(t, 12, cfg.MaxIdleConns)
	})

	t.Run("negative values fall back to zero", func(t *testing.T) {
		bindPoolEnv(t, map[string]string{
			"MAX_OPEN_CONNS": "-1",
			"MAX_IDLE_CONNS": "-3",
		})

		cfg := GetConfig()
		assert.Equal(t, 0, cfg.MaxOpenConns)
		assert.Equal(t, 0, cfg.MaxIdleConns)
	})

	cfg := GetConfig()
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
}
