package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/api/routes"
	"github.com/angelmondragon/marketcore-backend/internal/bootstrap"
	"github.com/angelmondragon/marketcore-backend/internal/catalog"
	"github.com/angelmondragon/marketcore-backend/internal/checkout"
	"github.com/angelmondragon/marketcore-backend/internal/commission"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payouts"
	"github.com/angelmondragon/marketcore-backend/internal/reports"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rt := bootstrap.MustLoad("api")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	sigCtx, stop := rt.SignalContext()
	defer stop()

	dbClient, err := rt.OpenDB(sigCtx)
	if err != nil {
		rt.Fatal(sigCtx, "failed to bootstrap database", err)
	}
	redisClient, err := rt.OpenRedis(sigCtx)
	if err != nil {
		rt.Fatal(sigCtx, "failed to bootstrap redis", err)
	}
	prometheus.MustRegister(redis.NewPoolCollector(redisClient))

	services, err := buildServices(cfg, dbClient, logg, metrics.NewMarketMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		rt.Fatal(sigCtx, "failed to build services", err)
	}

	addr := ":" + listenPort(cfg)
	ctx := logg.WithFields(sigCtx, map[string]any{"addr": addr, "instance": instanceID()})
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Infra{
			DB:      dbClient,
			Redis:   redisClient,
			Metrics: prometheus.DefaultGatherer,
			HTTP:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logg.Info(ctx, "starting api server")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Fatal(ctx, "api server stopped unexpectedly", err)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

// listenPort prefers the platform-assigned PORT.
func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}

func instanceID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "local"
}

func buildServices(cfg *config.Config, dbClient *db.Client, logg *logger.Logger, marketMetrics *metrics.MarketMetrics) (routes.Services, error) {
	gdb := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	rates, err := commission.NewService(commission.NewRepository(gdb), dbClient, outboxSvc, cfg.Commission.Floor(), logg, marketMetrics)
	if err != nil {
		return routes.Services{}, fmt.Errorf("commission service: %w", err)
	}
	earnings, err := ledger.NewService(ledger.NewRepository(gdb), rates, outboxSvc, logg)
	if err != nil {
		return routes.Services{}, fmt.Errorf("ledger service: %w", err)
	}
	flashSales, err := flashsale.NewService(flashsale.NewRepository(gdb), dbClient, outboxSvc, logg, marketMetrics,
		flashsale.WithHoldTTL(cfg.FlashSale.HoldTTL))
	if err != nil {
		return routes.Services{}, fmt.Errorf("flash sale service: %w", err)
	}
	ordersRepo := orders.NewRepository(gdb)
	catalogRepo := catalog.NewRepository(gdb)
	orderSvc, err := orders.NewService(ordersRepo, dbClient, outboxSvc, earnings, flashSales, catalogRepo, logg, marketMetrics)
	if err != nil {
		return routes.Services{}, fmt.Errorf("orders service: %w", err)
	}
	checkoutSvc, err := checkout.NewService(dbClient, catalogRepo, ordersRepo, flashSales, outboxSvc, logg)
	if err != nil {
		return routes.Services{}, fmt.Errorf("checkout service: %w", err)
	}
	payoutSvc, err := payouts.NewService(payouts.NewRepository(gdb), dbClient, earnings, outboxSvc, logg, marketMetrics)
	if err != nil {
		return routes.Services{}, fmt.Errorf("payouts service: %w", err)
	}
	reportSvc, err := reports.NewService(reports.NewRepository(gdb))
	if err != nil {
		return routes.Services{}, fmt.Errorf("reports service: %w", err)
	}
	notificationSvc, err := notifications.NewService(notifications.NewRepository(gdb))
	if err != nil {
		return routes.Services{}, fmt.Errorf("notifications service: %w", err)
	}

	return routes.Services{
		Checkout:      checkoutSvc,
		Orders:        orderSvc,
		Commission:    rates,
		Ledger:        earnings,
		Payouts:       payoutSvc,
		FlashSales:    flashSales,
		Reports:       reportSvc,
		Notifications: notificationSvc,
	}, nil
}
