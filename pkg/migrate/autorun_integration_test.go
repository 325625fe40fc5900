//go:build integration

package migrate_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/internal/testsupport/pgtest"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
)

func TestMaybeRunDevIsRepeatable(t *testing.T) {
	client := pgtest.Open(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}

	// pgtest already migrated; each boot must find nothing to apply.
	for range 2 {
		require.NoError(t, migrate.MaybeRunDev(context.Background(), cfg, logg, client))
	}
}
