// internal/commands/refund.go
package commands

import (
	"github.com/spf13/cobra"
)

func newRefundCommand(open opener) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "refund <reference>",
		Short: "Refund a completed purchase to its account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer application.Shutdown(ctx)

			result, err := application.LedgerService.Refund(ctx, args[0], note)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "reason recorded on the refund")

	return cmd
}
