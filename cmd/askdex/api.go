package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/askdex/internal/auth"
	"github.com/kailas-cloud/askdex/internal/config"
	"github.com/kailas-cloud/askdex/internal/db/postgres"
	outboxrepo "github.com/kailas-cloud/askdex/internal/repository/outbox"
	questionrepo "github.com/kailas-cloud/askdex/internal/repository/question"
	tagrepo "github.com/kailas-cloud/askdex/internal/repository/tag"
	chiTransport "github.com/kailas-cloud/askdex/internal/transport/chi"
	"github.com/kailas-cloud/askdex/internal/transport/streams"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
	"github.com/kailas-cloud/askdex/internal/usecase/publish"
	questionuc "github.com/kailas-cloud/askdex/internal/usecase/question"
	searchuc "github.com/kailas-cloud/askdex/internal/usecase/search"
)

func apiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the question, answer and search HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runAPI(ctx)
		},
	}
}

func (a *app) runAPI(ctx context.Context) error {
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
	if err := index.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	publisher := streams.NewPublisher(store, a.topology())
	emitter := publish.NewEmitter(publisher, config.Ms(a.cfg.Events.PublishTimeoutMS), a.logger)

	outbox := outboxrepo.New(pool)
	questions := questionuc.New(questionrepo.New(pool), tagrepo.New(pool), postgres.NewTxManager(pool), emitter)
	if a.cfg.Events.Delivery == config.DeliveryOutbox {
		questions.WithOutbox(outbox)
		emitter.WithOutbox(outbox)
	}

	search := searchuc.New(index).
		WithLimits(a.cfg.Search.DefaultLimit, a.cfg.Search.MaxLimit).
		WithTimeout(config.Ms(a.cfg.Search.TimeoutMS))
	health := healthuc.New(store).WithPostgres(pool)

	opts := chiTransport.Options{
		CORS: cors.Options{
			AllowedOrigins:   a.cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposedHeaders:   []string{"Location", "X-Request-ID"},
			AllowCredentials: true,
		},
	}
	if a.cfg.AuthEnabled() {
		verifier, err := auth.New(ctx, auth.Config{
			Secret:   a.cfg.Auth.JWTSecret,
			JWKSURL:  a.cfg.Auth.JWKSURL,
			Issuer:   a.cfg.Auth.Issuer,
			Audience: a.cfg.Auth.Audience,
		})
		if err != nil {
			return fmt.Errorf("create token verifier: %w", err)
		}
		opts.Verifier = verifier
	} else {
		a.logger.Warn("No auth key source configured; mutating routes will answer 401")
	}

	server := chiTransport.NewServer(questions, search, health, a.logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTP.Port),
		Handler:      server.Handler(opts),
		ReadTimeout:  config.Sec(a.cfg.HTTP.ReadTimeoutSec),
		WriteTimeout: config.Sec(a.cfg.HTTP.WriteTimeoutSec),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serve(gctx, srv) })
	if a.cfg.Events.Relay.Embedded {
		relay := publish.NewRelay(outbox, publisher, a.relayConfig(), a.logger)
		g.Go(func() error { return relay.Run(gctx) })
		a.logger.Info("Embedded outbox relay enabled")
	}
	return g.Wait()
}

func (a *app) relayConfig() publish.RelayConfig {
	return publish.RelayConfig{
		Interval:  config.Ms(a.cfg.Events.Relay.IntervalMS),
		BatchSize: a.cfg.Events.Relay.BatchSize,
		Timeout:   config.Ms(a.cfg.Events.Relay.TimeoutMS),
	}
}
