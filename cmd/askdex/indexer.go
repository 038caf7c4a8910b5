package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/askdex/internal/config"
	"github.com/kailas-cloud/askdex/internal/transport/streams"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
)

func indexerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "indexer",
		Short: "Consume question events and project them onto the search index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runIndexer(ctx)
		},
	}
}

func (a *app) runIndexer(ctx context.Context) error {
	store, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	index := a.indexRepo(store)
	if err := index.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	ev := a.cfg.Events
	sub := streams.NewSubscriber(store, a.projector(index), streams.SubscriberConfig{
		Topology:      a.topology(),
		Group:         ev.Group,
		Consumer:      ev.Consumer,
		DeadLetter:    ev.DeadLetter,
		BatchSize:     ev.BatchSize,
		Block:         config.Ms(ev.BlockMS),
		ClaimInterval: config.Sec(ev.ClaimIntervalSec),
		ClaimIdle:     config.Sec(ev.ClaimIdleSec),
		RetryInitial:  config.Ms(a.cfg.Projector.RetryInitialMS),
		RetryMax:      config.Ms(a.cfg.Projector.RetryMaxMS),
	}, a.logger)

	a.logger.Info("Indexer consuming",
		zap.String("group", ev.Group),
		zap.String("consumer", ev.Consumer),
		zap.Strings("streams", a.topology().Streams()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serve(gctx, a.opsServer(healthuc.New(store))) })
	g.Go(func() error {
		if err := sub.Run(gctx); err != nil {
			return fmt.Errorf("subscriber: %w", err)
		}
		return nil
	})
	return g.Wait()
}
