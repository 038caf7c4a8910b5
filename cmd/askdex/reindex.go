package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	questionrepo "github.com/kailas-cloud/askdex/internal/repository/question"
	"github.com/kailas-cloud/askdex/internal/usecase/reindex"
)

func reindexCmd(a *app) *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the system of record",
		Long: `Replay every question through the projector as a QuestionCreated event
at its current revision, then delete indexed documents whose question no
longer exists.

Examples:
  askdex reindex
  askdex reindex --drop`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runReindex(ctx, drop)
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "drop the index and its documents before rebuilding")
	return cmd
}

func (a *app) runReindex(ctx context.Context, drop bool) error {
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

	index := a.indexRepo(store)
	svc := reindex.New(questionrepo.New(pool), a.projector(index), index, a.cfg.Reindex.PageSize, a.logger)

	start := time.Now()
	stats, err := svc.Run(ctx, drop)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	a.logger.Info("Reindex complete",
		zap.Int("questions", stats.Questions),
		zap.Int("pages", stats.Pages),
		zap.Int("pruned", stats.Pruned),
		zap.Bool("drop", drop),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
