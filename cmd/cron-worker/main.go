package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/internal/bootstrap"
	"github.com/angelmondragon/marketcore-backend/internal/catalog"
	"github.com/angelmondragon/marketcore-backend/internal/commission"
	"github.com/angelmondragon/marketcore-backend/internal/cron"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
)

func main() {
	rt := bootstrap.MustLoad("cron-worker")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	ctx, stop := rt.SignalContext()
	defer stop()

	dbClient, err := rt.OpenDB(ctx)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap database", err)
	}
	redisClient, err := rt.OpenRedis(ctx)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap redis", err)
	}

	registry, err := buildRegistry(cfg, dbClient, logg)
	if err != nil {
		rt.Fatal(ctx, "failed to register cron jobs", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", lockScope(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		rt.Fatal(ctx, "failed to create cron lock", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		RunOnStart: cfg.Cron.RunOnStart,
	})
	if err != nil {
		rt.Fatal(ctx, "failed to create cron service", err)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*cron.Registry, error) {
	marketMetrics := metrics.NewMarketMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	rates, err := commission.NewService(commission.NewRepository(dbClient.DB()), dbClient, outboxSvc, cfg.Commission.Floor(), logg, marketMetrics)
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}
	earnings, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), rates, outboxSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	flashSales, err := flashsale.NewService(flashsale.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg, marketMetrics,
		flashsale.WithHoldTTL(cfg.FlashSale.HoldTTL))
	if err != nil {
		return nil, fmt.Errorf("flash sale service: %w", err)
	}
	orderSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, earnings, flashSales,
		catalog.NewRepository(dbClient.DB()), logg, marketMetrics)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	orderTTL, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{Logger: logg, Orders: orderSvc, TTL: cfg.Orders.PendingTTL})
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewFlashSaleSweepJob(cron.FlashSaleSweepJobParams{Logger: logg, FlashSales: flashSales})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   outboxRepo,
		DeadLetters:  outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.NotificationRetention,
		BatchSize:  cfg.Cron.NotificationPurgeBatch,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, entry := range []cron.Entry{
		{Job: orderTTL, Schedule: cfg.Cron.PendingOrderSchedule},
		{Job: sweep, Schedule: cfg.FlashSale.SweepSchedule},
		{Job: outboxRetention, Schedule: cfg.Cron.OutboxRetentionSchedule},
		{Job: notificationCleanup, Schedule: cfg.Cron.NotificationSchedule},
	} {
		if err := registry.Register(entry.Job, entry.Schedule); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
