// internal/commands/root.go
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	app "chatpay-wallet/internal"
	"chatpay-wallet/internal/config"
	"chatpay-wallet/pkg/db"
)

// NewRootCommand creates the walletctl command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "walletctl",
		Short: "Operate the chat wallet: schema, accounts and refunds",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured LOG_LEVEL instead of errors only")

	open := func(ctx context.Context, autoMigrate bool) (*app.Application, error) {
		return openApplication(ctx, verbose, autoMigrate)
	}

	rootCmd.AddCommand(newMigrateCommand(open))
	rootCmd.AddCommand(newAccountCommand(open))
	rootCmd.AddCommand(newRefundCommand(open))

	return rootCmd
}

type opener func(ctx context.Context, autoMigrate bool) (*app.Application, error)

// openApplication builds the application from the environment. Command
// output goes to stdout, so logs are kept to errors unless verbose is set.
func openApplication(ctx context.Context, verbose, autoMigrate bool) (*app.Application, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !verbose {
		cfg.LogLevel = "error"
	}
	cfg.DB.AutoMigrate = autoMigrate

	application := app.NewApplication()
	if err := application.InitializeWithConfig(ctx, cfg); err != nil {
		if application.DB != nil {
			_ = application.Shutdown(ctx)
		}
		return nil, err
	}
	return application, nil
}

func newMigrateCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := open(ctx, false)
			if err != nil {
				return err
			}
			defer application.Shutdown(ctx)

			if err := db.Migrate(application.DB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", application.DB.DriverName())
			return nil
		},
	}
}
