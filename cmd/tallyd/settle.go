package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xraph/tally"
)

func newSettleCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Run one settlement pass over every active subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), flags, nil, tally.WithoutScheduler())
			if err != nil {
				return err
			}
			defer a.close()
			defer func() { _ = a.engine.Stop() }()

			return settleOnce(cmd.Context(), a.engine, cmd.OutOrStdout())
		},
	}
}

// settleOnce migrates, runs one locked pass and prints its report. Any
// failed subscription makes it return an error.
func settleOnce(ctx context.Context, engine *tally.Engine, out io.Writer) error {
	if err := engine.Store().Migrate(ctx); err != nil {
		return fmt.Errorf("tallyd: migrate: %w", err)
	}

	report, ran, err := engine.SettlePass(ctx)
	if !ran {
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "settlement skipped: lock held by another instance")
		return nil
	}

	fmt.Fprintf(out, "processed=%d operations=%d failed=%d\n", report.Processed, report.Operations, len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(out, "  %s: %v\n", f.SubscriptionID, f.Err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("tallyd: %d subscriptions failed to settle", len(report.Failed))
	}
	return err
}
