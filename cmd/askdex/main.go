package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/config"
	logpkg "github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/metrics"
	"github.com/kailas-cloud/askdex/internal/version"
)

// app is the state shared by every subcommand after config resolution.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "askdex",
		Short:         "askdex - question search index kept in sync through domain events",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Name())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(apiCmd(a))
	rootCmd.AddCommand(indexerCmd(a))
	rootCmd.AddCommand(relayCmd(a))
	rootCmd.AddCommand(reindexCmd(a))

	if err := rootCmd.Execute(); err != nil {
		if a.logger != nil {
			a.logger.Error("command failed", zap.Error(err))
			_ = a.logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (a *app) init(component string) error {
	a.env = config.GetEnv()

	cfg, err := config.Load(a.env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logpkg.NewLogger(a.env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logpkg.WithComponent(logger, component)

	metrics.RegisterPipelineMetrics()

	a.logger.Info("Starting askdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Strings("redis_addrs", cfg.Database.Addrs),
		zap.String("delivery", cfg.Events.Delivery),
		zap.Int("partitions", cfg.Events.Partitions),
	)
	return nil
}
