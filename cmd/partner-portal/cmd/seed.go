package cmd

import (
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo tenant into an empty store",
	Long:  `Create the demo tenant, its sub-accounts, campaigns and 90 days of metrics. Does nothing when any tenant exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.migrate(cmd.Context()); err != nil {
			return err
		}
		return a.seed(cmd.Context())
	},
}
