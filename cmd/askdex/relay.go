package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	outboxrepo "github.com/kailas-cloud/askdex/internal/repository/outbox"
	"github.com/kailas-cloud/askdex/internal/transport/streams"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
	"github.com/kailas-cloud/askdex/internal/usecase/publish"
)

func relayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish outbox rows the API could not deliver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runRelay(ctx)
		},
	}
}

func (a *app) runRelay(ctx context.Context) error {
	store, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	pool, err := a.openPostgres(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	relay := publish.NewRelay(outboxrepo.New(pool), streams.NewPublisher(store, a.topology()), a.relayConfig(), a.logger)
	health := healthuc.New(store).WithPostgres(pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serve(gctx, a.opsServer(health)) })
	g.Go(func() error { return relay.Run(gctx) })
	return g.Wait()
}
