package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations, creating the database if needed",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := bootstrap(cmd.Context(), noTelemetry)
				if err != nil {
					return err
				}
				defer rt.Close(cmd.Context())
				if err := rt.pool.MigrateUp(); err != nil {
					return err
				}
				slog.InfoContext(cmd.Context(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := bootstrap(cmd.Context(), noTelemetry)
				if err != nil {
					return err
				}
				defer rt.Close(cmd.Context())
				if err := rt.pool.MigrateDown(); err != nil {
					return err
				}
				slog.InfoContext(cmd.Context(), "last migration rolled back")
				return nil
			},
		},
		newMigrationCommand(),
	)
	return cmd
}

func newMigrationCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Write a new timestamped migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("migration name must not be empty")
			}
			rt, err := bootstrap(cmd.Context(), noTelemetry)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			return rt.pool.GenerateMigration(dir, args[0])
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory the migration file is written to")
	return cmd
}
