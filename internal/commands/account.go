// internal/commands/account.go
package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"chatpay-wallet/internal/service"
)

func newAccountCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and manage wallet accounts",
	}
	cmd.AddCommand(newActivateCommand(open))
	cmd.AddCommand(newDepositCommand(open))
	cmd.AddCommand(newBalanceCommand(open))
	return cmd
}

func newActivateCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <handle>",
		Short: "Mark an account verified and active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer application.Shutdown(ctx)

			account, err := application.AccountService.Activate(ctx, args[0])
			if err != nil {
				return fmt.Errorf("activating %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s is %s.\n", account.Handle, account.Status)
			return nil
		},
	}
}

func newDepositCommand(open opener) *cobra.Command {
	var note, key string

	cmd := &cobra.Command{
		Use:   "deposit <handle> <amount>",
		Short: "Credit an account from outside the wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			ctx := cmd.Context()
			application, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer application.Shutdown(ctx)

			account, err := application.AccountService.GetByHandle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("finding %s: %w", args[0], err)
			}
			result, err := application.LedgerService.Deposit(ctx, service.DepositRequest{
				AccountID:      account.ID,
				Amount:         amount,
				Note:           note,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note stored on the transaction")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "retry key; a repeated key does not credit twice")

	return cmd
}

func newBalanceCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <handle>",
		Short: "Show an account's balance and remaining limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer application.Shutdown(ctx)

			account, err := application.AccountService.GetByHandle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("finding %s: %w", args[0], err)
			}
			summary, err := application.LedgerService.GetBalance(ctx, account.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account:           %s (%s)\n", account.Handle, account.Status)
			fmt.Fprintf(out, "Balance:           R%s\n", summary.Balance.StringFixed(2))
			fmt.Fprintf(out, "Daily remaining:   R%s\n", summary.DailyRemaining.StringFixed(2))
			fmt.Fprintf(out, "Monthly remaining: R%s\n", summary.MonthlyRemaining.StringFixed(2))
			return nil
		},
	}
}

// printResult writes a ledger outcome. A rejection is reported as an error
// so that scripts see a non-zero exit status.
func printResult(cmd *cobra.Command, result *service.Result) error {
	if !result.Success && result.Reason != service.ReasonDuplicateRequest {
		return fmt.Errorf("%s (%s)", result.Message, result.Reason)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Message)
	if tx := result.Transaction; tx != nil {
		fmt.Fprintf(out, "Reference: %s\n", tx.Reference)
	}
	return nil
}
