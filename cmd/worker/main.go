// worker runs background jobs for the session store: scheduled pruning of stale sessions and a
// watcher that tails the security-event topic. Configuration comes from the same environment as the server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"auth-session-service/internal/audit"
	auditdomain "auth-session-service/internal/audit/domain"
	"auth-session-service/internal/config"
	"auth-session-service/internal/db"
	"auth-session-service/internal/logger"
	"auth-session-service/internal/security"
	"auth-session-service/internal/session/pruner"
	"auth-session-service/internal/session/repository"
	"auth-session-service/internal/telemetry/producer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "worker",
		Short:        "Background jobs for the session service",
		SilenceUsage: true,
	}
	root.AddCommand(newPruneCommand(), newWatchCommand())
	return root
}

func newPruneCommand() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions past expiry and the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

			pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := repository.NewPostgresRepository(pool, security.NewSecretGenerator(cfg.HMACKey()), cfg.StoreTimeout)
			p := pruner.New(repo, cfg.PruneRetention, log)
			if once {
				_, err := p.Run(ctx)
				return err
			}
			return p.Schedule(ctx, cfg.PruneSchedule)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "prune once and exit instead of running on PRUNE_SCHEDULE")
	return cmd
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Consume the security-event topic and write each event to the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

			brokers := cfg.SecurityEventsKafkaBrokersList()
			if len(brokers) == 0 {
				return errors.New("worker: SECURITY_EVENTS_KAFKA_BROKERS is required")
			}
			consumer, err := producer.NewKafkaConsumer(brokers, cfg.SecurityEventsKafkaTopic, cfg.SecurityEventsKafkaGroupID, log)
			if err != nil {
				return err
			}
			defer consumer.Close()

			sink := audit.NewSecurityLogger(log.With("source", "kafka"), nil)
			log.Info("watching security events",
				"topic", cfg.SecurityEventsKafkaTopic, "group", cfg.SecurityEventsKafkaGroupID)
			return consumer.Consume(cmd.Context(), func(ctx context.Context, event auditdomain.SecurityEvent) error {
				sink.Log(ctx, event)
				return nil
			})
		},
	}
}
