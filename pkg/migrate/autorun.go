package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

// autoRunLockKey is the postgres advisory lock held while a dev process
// migrates, so api and workers started together do not race goose.
const autoRunLockKey int64 = 7_302_114_001

// MaybeRunDev applies the embedded migrations on boot in dev when
// MARKETCORE_AUTO_MIGRATE is set, then checks the schema is complete.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	return autoRun(logg.WithField(ctx, "env", cfg.App.Env), sqlDB, logg)
}

func autoRun(ctx context.Context, sqlDB *sql.DB, logg *logger.Logger) error {
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserve lock connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, autoRunLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, autoRunLockKey)
	}()

	before, err := schemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	if err := UpEmbedded(ctx, sqlDB); err != nil {
		return err
	}
	after, err := schemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	if err := Verify(ctx, sqlDB); err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"from_version": before,
		"to_version":   after,
		"applied":      before != after,
	}), "migrate.autorun.done")
	return nil
}

func schemaVersion(ctx context.Context, sqlDB *sql.DB) (int64, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
