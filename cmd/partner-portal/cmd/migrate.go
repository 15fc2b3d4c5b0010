package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if a.db == nil {
			return errors.New("database is disabled; set PORTAL_DB_ENABLED=true")
		}
		return a.migrate(cmd.Context())
	},
}
