package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/tally"
)

func newMigrateCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), flags, nil, tally.WithoutScheduler())
			if err != nil {
				return err
			}
			defer a.close()
			defer func() { _ = a.engine.Store().Close() }()

			if err := a.engine.Store().Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("tallyd: migrate: %w", err)
			}
			a.logger.Info("migrations applied", "driver", a.cfg.Database.Driver)
			return nil
		},
	}
}
