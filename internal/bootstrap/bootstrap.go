// Package bootstrap holds the start-up sequence shared by every binary:
// environment and config loading, the structured logger, infrastructure
// clients and their ordered shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Runtime is a loaded process: its config, its logger and every client
// opened through it, closed in reverse order by Close.
type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger

	closers []closer
}

// Load reads .env when present, then the environment. The returned logger
// is configured from the loaded settings.
func Load(service string) (*Runtime, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = service
	return &Runtime{
		Service: service,
		Config:  cfg,
		Logger: logger.New(logger.Options{
			ServiceName: service,
			Environment: cfg.App.Env,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}, nil
}

// MustLoad is Load for main functions: a failure is logged with a default
// logger and the process exits.
func MustLoad(service string) *Runtime {
	rt, err := Load(service)
	if err != nil {
		logger.New(logger.Options{ServiceName: service}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	return rt
}

// Fatal logs err, releases opened clients and exits non-zero.
func (rt *Runtime) Fatal(ctx context.Context, msg string, err error) {
	rt.Logger.Error(ctx, msg, err)
	rt.Close()
	os.Exit(1)
}

// ConnectDB opens the Postgres pool without touching the schema.
func (rt *Runtime) ConnectDB(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.track("database", client.Close)
	return client, nil
}

// OpenDB is ConnectDB followed by the embedded migrations in dev.
func (rt *Runtime) OpenDB(ctx context.Context) (*db.Client, error) {
	client, err := rt.ConnectDB(ctx)
	if err != nil {
		return nil, err
	}
	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (rt *Runtime) OpenRedis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.track("redis", client.Close)
	return client, nil
}

func (rt *Runtime) OpenPubSub(ctx context.Context, role pubsub.Role) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, role, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.track("pubsub", client.Close)
	return client, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the service
// identity as log fields.
func (rt *Runtime) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return rt.Logger.WithField(ctx, "service_kind", rt.Service), stop
}

// Close releases clients newest first. Failures are logged together and
// returned as one error.
func (rt *Runtime) Close() error {
	var errs error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	if errs != nil {
		rt.Logger.Error(context.Background(), "error closing clients", errs)
	}
	return errs
}

func (rt *Runtime) track(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, fn: fn})
}
