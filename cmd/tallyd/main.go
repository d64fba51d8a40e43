// Command tallyd runs the tally settlement scheduler and its maintenance
// commands.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	env        string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "tallyd",
		Short:         "Tally ledger and subscription-billing daemon",
		Long:          `tallyd settles subscriptions on a schedule, serves health and metrics endpoints, and runs store migrations.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML config file (default: tally.yaml in . or ./configs)")
	rootCmd.PersistentFlags().StringVarP(&flags.env, "env", "e", "", "Environment (development, test, production)")

	rootCmd.AddCommand(
		newServeCommand(flags),
		newSettleCommand(flags),
		newMigrateCommand(flags),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
