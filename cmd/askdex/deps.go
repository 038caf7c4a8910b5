package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/config"
	"github.com/kailas-cloud/askdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/askdex/internal/db/redis"
	"github.com/kailas-cloud/askdex/internal/metrics"
	indexrepo "github.com/kailas-cloud/askdex/internal/repository/index"
	"github.com/kailas-cloud/askdex/internal/transport/streams"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
	"github.com/kailas-cloud/askdex/internal/usecase/projector"
)

func (a *app) openRedis(ctx context.Context) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:      a.cfg.Database.Addrs,
		Username:   a.cfg.Database.Username,
		Password:   a.cfg.Database.Password,
		DB:         a.cfg.Database.DB,
		ClientName: "askdex",
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, config.Sec(a.cfg.Database.ReadinessTimeout)); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	a.logger.Info("Connected to Redis")
	return store, nil
}

func (a *app) openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := postgres.WaitForReady(ctx, postgres.Config{
		URL:      a.cfg.Postgres.URL,
		MaxConns: a.cfg.Postgres.MaxConns,
		MinConns: a.cfg.Postgres.MinConns,
	}, config.Sec(a.cfg.Postgres.ReadinessTimeout))
	if err != nil {
		return nil, fmt.Errorf("postgres not ready: %w", err)
	}
	if a.cfg.Postgres.MigrateOnStart {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	a.logger.Info("Connected to Postgres")
	return pool, nil
}

func (a *app) topology() streams.Topology {
	return streams.Topology{Prefix: a.cfg.Events.StreamPrefix, Partitions: a.cfg.Events.Partitions}
}

func (a *app) indexRepo(store *dbRedis.Store) *indexrepo.Repo {
	return indexrepo.New(store, a.cfg.Database.KeyPrefix)
}

func (a *app) projector(index projector.Index) *projector.Service {
	return projector.New(index, projector.Config{
		TombstoneTTL: config.Sec(a.cfg.Projector.TombstoneTTLSec),
		ApplyTimeout: config.Ms(a.cfg.Projector.ApplyTimeoutMS),
		Stripes:      a.cfg.Projector.LockStripes,
	}, a.logger)
}

// opsServer serves /health and /metrics for the background processes.
func (a *app) opsServer(health *healthuc.Service) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		report := health.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != healthuc.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = fmt.Fprintf(w, "{\"status\":%q}\n", report.Status)
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTP.IndexerPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func (a *app) serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Sec(a.cfg.HTTP.ShutdownSec))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("Server stopped gracefully")
	return nil
}
