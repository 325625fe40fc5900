package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	defaultTxAttempts = 3
	baseRetryBackoff  = 50 * time.Millisecond
)

// Client wraps the shared GORM connection.
type Client struct {
	conn        *gorm.DB
	logg        *logger.Logger
	maxAttempts int
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens Postgres through pgx, sizes the pool and installs the query logger.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	configurePool(sqlDB, cfg)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"max_open_conns": cfg.MaxOpenConns,
			"tx_attempts":    cfg.TxMaxAttempts,
		}), "database connection established")
	}

	client := NewFromConn(conn, logg)
	if cfg.TxMaxAttempts > 0 {
		client.maxAttempts = cfg.TxMaxAttempts
	}
	return client, nil
}

// NewFromConn wraps an already opened connection (sqlite in tests,
// testcontainers in integration runs).
func NewFromConn(conn *gorm.DB, logg *logger.Logger) *Client {
	return &Client{conn: conn, logg: logg, maxAttempts: defaultTxAttempts}
}

func configurePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in one transaction. An error or panic from fn rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// WithRetryTx runs fn in a fresh transaction per attempt, retrying
// serialization failures, deadlocks and lock timeouts with jittered
// exponential backoff. fn must be safe to re-run.
func (c *Client) WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempts := max(c.maxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := c.WithTx(ctx, fn)
		if err == nil || attempt >= attempts || ClassifyError(err) != ErrorClassRetryable {
			return err
		}

		delay := retryDelay(attempt)
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
				"error":    err.Error(),
			}), "retrying transaction after transient database error")
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay doubles baseRetryBackoff per attempt and adds up to 25% jitter.
func retryDelay(attempt int) time.Duration {
	d := baseRetryBackoff << (attempt - 1)
	return d + time.Duration(rand.Int64N(int64(d/4)+1))
}
