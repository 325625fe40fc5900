package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/marketcore-backend/internal/bootstrap"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
)

const (
	ordersConsumerName  = "notifications-orders"
	payoutsConsumerName = "notifications-payouts"
)

func main() {
	rt := bootstrap.MustLoad("worker")
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
	pubsubClient, err := rt.OpenPubSub(ctx, pubsub.RoleSubscriber)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap pubsub", err)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		rt.Fatal(ctx, "failed to build event registry", err)
	}
	tracker, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		rt.Fatal(ctx, "failed to create idempotency manager", err)
	}

	repo := notifications.NewRepository(dbClient.DB())
	decoders := eventRegistry.Decoders()
	subscriptions := []struct {
		name string
		sub  notifications.Receiver
	}{
		{ordersConsumerName, pubsubClient.OrdersSubscription()},
		{payoutsConsumerName, pubsubClient.PayoutsSubscription()},
	}
	consumers := make([]Runner, 0, len(subscriptions))
	for _, s := range subscriptions {
		consumer, err := notifications.NewConsumer(s.name, repo, s.sub, decoders, tracker, logg)
		if err != nil {
			rt.Fatal(ctx, "failed to create "+s.name+" consumer", err)
		}
		consumers = append(consumers, consumer)
	}

	service, err := NewService(ServiceParams{
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		PubSub:    pubsubClient,
		Consumers: consumers,
	})
	if err != nil {
		rt.Fatal(ctx, "failed to create worker service", err)
	}

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
