package postgresql

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "reconciler",
		Password: "s3cret",
		Database: "godmode",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=reconciler password=s3cret dbname=godmode sslmode=disable",
		cfg.DSN(),
	)
}

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &Client{
		db:     sqlx.NewDb(mockDB, "postgres"),
		config: &Config{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, mock
}

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		expect    func(mock sqlmock.Sqlmock)
		errString string
	}{
		{
			name: "healthy",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))
			},
		},
		{
			name: "ping fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing().WillReturnError(errors.New("connection refused"))
			},
			errString: "database health check failed",
		},
		{
			name: "query fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectPing()
				mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("recovery in progress"))
			},
			errString: "database query health check failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newMockClient(t)
			tt.expect(mock)

			err := client.HealthCheck(context.Background())

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		client, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := WithTx(context.Background(), client.GetDB(), func(tx *sqlx.Tx) error {
			_, err := tx.Exec("UPDATE users SET daily_balance = 30")
			return err
		})

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		client, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := WithTx(context.Background(), client.GetDB(), func(*sqlx.Tx) error { return boom })

		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		client, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = WithTx(context.Background(), client.GetDB(), func(*sqlx.Tx) error { panic("kaboom") })
		})
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is reported", func(t *testing.T) {
		client, mock := newMockClient(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := WithTx(context.Background(), client.GetDB(), func(*sqlx.Tx) error { return nil })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
