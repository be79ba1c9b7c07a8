package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvcoi/ytbatch/internal/app"
)

func newFailuresCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "failures",
		Short: "List the failure store",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := cc.ledger(zap.NewNop())
			if err != nil {
				return err
			}
			records, err := led.ListFailures(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No failures recorded")
				return nil
			}
			fmt.Fprintln(out, app.RenderFailures(records))
			return nil
		},
	}
}

func newHistoryCommand(cc *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed downloads",
		Long:  "Lists the download catalog when one is configured, otherwise the success store.",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cat, err := cc.openCatalog()
			if err != nil {
				return err
			}
			if cat != nil {
				defer cat.Close()
				entries, err := cat.List(cmd.Context(), limit, 0)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No downloads recorded")
					return nil
				}
				fmt.Fprintln(out, app.RenderCatalog(entries))
				return nil
			}

			led, err := cc.ledger(zap.NewNop())
			if err != nil {
				return err
			}
			successes, err := led.ListSuccesses(cmd.Context())
			if err != nil {
				return err
			}
			if len(successes) == 0 {
				fmt.Fprintln(out, "No downloads recorded")
				return nil
			}
			if limit > 0 && len(successes) > limit {
				successes = successes[len(successes)-limit:]
			}
			fmt.Fprintln(out, app.RenderHistory(successes))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show")
	return cmd
}
