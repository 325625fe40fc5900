package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Runner is a long-lived consumer loop.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger    *logger.Logger
	DB        pinger
	Redis     pinger
	PubSub    pinger
	Consumers []Runner
}

type Service struct {
	logg      *logger.Logger
	deps      []namedPinger
	consumers []Runner
}

type namedPinger struct {
	name string
	p    pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	return &Service{
		logg: params.Logger,
		deps: []namedPinger{
			{name: "database", p: params.DB},
			{name: "redis", p: params.Redis},
			{name: "pubsub", p: params.PubSub},
		},
		consumers: params.Consumers,
	}, nil
}

// ensureReadiness pings every dependency in parallel and fails on the first
// one that is unreachable.
func (s *Service) ensureReadiness(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range s.deps {
		g.Go(func() error {
			if err := dep.p.Ping(gctx); err != nil {
				s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
				return fmt.Errorf("%s ping failed: %w", dep.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run starts every consumer and returns once all have stopped. The first
// unexpected failure cancels the rest.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, consumer := range s.consumers {
		wg.Add(1)
		go func(c Runner) {
			defer wg.Done()
			err := c.Run(runCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			s.logg.Error(s.logg.WithField(runCtx, "consumer", c.Name()), "consumer stopped unexpectedly", err)
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			mu.Unlock()
			cancel()
		}(consumer)
	}
	wg.Wait()

	if errs != nil {
		return errs
	}
	return ctx.Err()
}
