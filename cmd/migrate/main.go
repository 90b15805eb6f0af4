// migrate applies the embedded SQL migrations: up, down, steps N, status.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"auth-session-service/internal/config"
	"auth-session-service/internal/db/migrate"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the session store schema",
		SilenceUsage: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDSN(func(dsn string) error { return migrate.Run(dsn, "up") })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDSN(func(dsn string) error { return migrate.Run(dsn, "down") })
			},
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations forward (N > 0) or backward (N < 0)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps: %w", err)
				}
				return withDSN(func(dsn string) error { return migrate.Steps(dsn, n) })
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDSN(func(dsn string) error {
					st, err := migrate.CurrentStatus(dsn)
					if err != nil {
						return err
					}
					if !st.Applied {
						cmd.Println("no migrations applied")
						return nil
					}
					cmd.Printf("version %d (dirty=%t)\n", st.Version, st.Dirty)
					return nil
				})
			},
		},
	)
	return root
}

func withDSN(fn func(dsn string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	return fn(cfg.DatabaseURL)
}
