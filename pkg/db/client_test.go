package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type ledgerRow struct {
	ID   int
	Note string
}

func openSQLite(t *testing.T, cfg *gorm.Config) *gorm.DB {
	t.Helper()
	if cfg == nil {
		cfg = &gorm.Config{Logger: gormlogger.Discard}
	}
	cfg.SkipDefaultTransaction = true
	conn, err := gorm.Open(sqlite.Open("file:db_"+uuid.NewString()+"?mode=memory&cache=shared"), cfg)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	conn := openSQLite(t, nil)
	client := NewFromConn(conn, nil)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Note: "committed"}).Error
	}))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Note: "rolled back"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := openSQLite(t, nil)
	client := NewFromConn(conn, nil)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Note: "lost"}).Error)
			panic("handler bug")
		})
	})
	assert.Zero(t, countRows(t, conn))
}

func TestPingAndClose(t *testing.T) {
	client := NewFromConn(openSQLite(t, nil), nil)
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Close())
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	assert.EqualError(t, err, "database DSN is required")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"serialization", &pgconn.PgError{Code: "40001"}, ErrorClassRetryable},
		{"deadlock pq", &pq.Error{Code: "40P01"}, ErrorClassRetryable},
		{"lock timeout wrapped", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "55P03"}), ErrorClassRetryable},
		{"unique", &pgconn.PgError{Code: "23505"}, ErrorClassPermanent},
		{"check", &pq.Error{Code: "23514"}, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_earnings_line_vendor"}
	assert.True(t, IsUniqueViolation(pgErr, "ux_earnings_line_vendor"))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), ""))
	assert.False(t, IsUniqueViolation(pgErr, "ux_payouts_reference"))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: earnings.order_line_id"), ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestWithRetryTx(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   bool
	}{
		{name: "transient then success", failures: []error{&pgconn.PgError{Code: "40001"}, &pq.Error{Code: "40P01"}}, wantCalls: 3},
		{name: "permanent stops at once", failures: []error{&pgconn.PgError{Code: "23505"}}, wantCalls: 1, wantErr: true},
		{name: "attempts exhausted", failures: []error{
			&pgconn.PgError{Code: "40001"}, &pgconn.PgError{Code: "40001"}, &pgconn.PgError{Code: "40001"},
		}, wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewFromConn(openSQLite(t, nil), nil)
			calls := 0
			err := client.WithRetryTx(context.Background(), func(tx *gorm.DB) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestWithRetryTxHonoursCancellation(t *testing.T) {
	client := NewFromConn(openSQLite(t, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())

	err := client.WithRetryTx(ctx, func(tx *gorm.DB) error {
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryDelayGrowsWithJitterBound(t *testing.T) {
	for attempt := 1; attempt <= 4; attempt++ {
		base := baseRetryBackoff << (attempt - 1)
		d := retryDelay(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/4)
	}
}

func TestQueryLoggerReportsSlowStatementsWithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf})
	conn := openSQLite(t, &gorm.Config{Logger: newQueryLogger(logg, time.Nanosecond)})

	ctx := logg.WithRequestID(context.Background(), "req-42")
	require.NoError(t, conn.WithContext(ctx).Create(&ledgerRow{Note: "slow"}).Error)

	out := buf.String()
	assert.Contains(t, out, `"slow query"`)
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, `"sql":`)
}

func TestQueryLoggerQuietBelowThreshold(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf})
	conn := openSQLite(t, &gorm.Config{Logger: newQueryLogger(logg, time.Hour)})
	buf.Reset()

	require.NoError(t, conn.Create(&ledgerRow{Note: "fast"}).Error)
	assert.Empty(t, buf.String())

	assert.Equal(t, gormlogger.Discard, newQueryLogger(nil, time.Second))
}
