package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/database"
	"github.com/at-ishikawa/learnsync/schemas"
)

func newDBCommand() *cobra.Command {
	dbCommand := &cobra.Command{
		Use:   "db",
		Short: "Remote database commands",
	}
	dbCommand.AddCommand(newDBMigrateCommand())
	return dbCommand
}

func newDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the remote schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Remote.Enabled() {
				return fmt.Errorf("remote.host and remote.database must be configured")
			}

			db, err := database.Open(cfg.Remote)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			version, err := database.Migrate(db, schemas.Migrations, schemas.MigrationsDir)
			if err != nil {
				return err
			}
			_, _ = successColor.Fprintf(cmd.OutOrStdout(), "remote schema is at version %d\n", version)
			return nil
		},
	}
}
