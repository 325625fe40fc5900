package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcore-backend/internal/bootstrap"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
)

func main() {
	rt := bootstrap.MustLoad("outbox-publisher")
	defer rt.Close()

	ctx, stop := rt.SignalContext()
	defer stop()

	dbClient, err := rt.OpenDB(ctx)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap database", err)
	}
	pubsubClient, err := rt.OpenPubSub(ctx, pubsub.RolePublisher)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap pubsub", err)
	}
	eventRegistry, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		rt.Fatal(ctx, "failed to build event registry", err)
	}

	gdb := dbClient.DB()
	service, err := NewService(ServiceParams{
		Config:        rt.Config,
		Logger:        rt.Logger,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(gdb),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(gdb),
		Metrics:       metrics.NewMarketMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		rt.Fatal(ctx, "failed to create outbox publisher", err)
	}

	rt.Logger.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "outbox publisher stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "outbox publisher shutting down gracefully")
}
