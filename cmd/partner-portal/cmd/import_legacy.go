package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/radiusdt/partner-portal/internal/portal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy <data.json>",
	Short: "Import the legacy single-file JSON store into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if a.db == nil {
			return errors.New("database is disabled; importing into memory would be lost on exit")
		}
		if err := a.migrate(cmd.Context()); err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open legacy file: %w", err)
		}
		defer f.Close()

		stats, err := portal.ImportLegacy(cmd.Context(), a.store, f, a.logger)
		if err != nil {
			return err
		}
		a.logger.Info("import complete",
			zap.String("file", args[0]),
			zap.Int("tenants", stats.Tenants),
			zap.Int("team_members", stats.TeamMembers),
			zap.Int("schedules", stats.Schedules),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}
