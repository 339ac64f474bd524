package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thuinanutshell/ux-interviewer/bootstrap"
	"github.com/thuinanutshell/ux-interviewer/config"
)

func newResetDBCmd() *cobra.Command {
	var opts bootstrap.ResetOptions

	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Delete the instance directory and recreate an empty database",
		Long: `Delete the instance directory and everything in it, recreate it empty,
and create every table from the current schema.

This destroys all data. It requires --yes, and additionally --force when
APP_ENV (or FLASK_ENV) is production.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.LoadSecrets(cmd.Context(), cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				errorColor.Fprintf(errOut, "✗ %v\n", err)
				return err
			}

			if err := bootstrap.CheckReset(cfg, opts); err != nil {
				switch {
				case errors.Is(err, bootstrap.ErrResetNotConfirmed):
					warningColor.Fprintf(out, "This will permanently delete %s and all data in it.\n", cfg.InstanceDir)
					fmt.Fprintln(out, "Re-run with --yes to confirm.")
				case errors.Is(err, bootstrap.ErrResetInProduction):
					warningColor.Fprintln(out, "Environment is production. Re-run with --yes --force to reset anyway.")
				default:
					errorColor.Fprintf(errOut, "✗ %v\n", err)
				}
				return err
			}

			_, sugar, err := bootstrap.InitLogger(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = sugar.Sync() }()

			infoColor.Fprintf(out, "Resetting database in %s...\n", cfg.InstanceDir)
			if err := bootstrap.ResetDatabase(cmd.Context(), cfg, opts, sugar); err != nil {
				errorColor.Fprintf(errOut, "✗ Error during database setup: %v\n", err)
				return err
			}

			successColor.Fprintln(out, "✓ Database setup completed successfully!")
			fmt.Fprintln(out, "You can now start the server with a fresh database.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Confirmed, "yes", "y", false, "Confirm deletion of the instance directory")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Allow resetting a production database")
	return cmd
}
