package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"procurement/db/migrations"
)

func migrateCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}
	step := func(use, short string, fn func(*sql.DB) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := bootstrap(*envFile)
				if err != nil {
					return err
				}
				defer log.Sync()
				if err := cfg.RequireDatabase(); err != nil {
					return err
				}
				conn, err := migrations.Open(cfg.Database.DSN)
				if err != nil {
					return err
				}
				defer conn.Close()
				if err := fn(conn); err != nil {
					return err
				}
				log.Info(fmt.Sprintf("migrate %s done", use))
				return nil
			},
		}
	}
	cmd.AddCommand(
		step("up", "Apply all pending migrations", migrations.Run),
		step("down", "Roll back the latest migration", migrations.Down),
		step("status", "Print migration status", migrations.Status),
	)
	return cmd
}
