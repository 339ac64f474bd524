package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thuinanutshell/ux-interviewer/bootstrap"
	"github.com/thuinanutshell/ux-interviewer/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.LoadSecrets(cmd.Context(), cfg); err != nil {
				return err
			}

			app, err := bootstrap.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if err := app.InitializeDatabase(ctx); err != nil {
				app.Shutdown()
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			if err := app.Start(ctx); err != nil {
				app.Shutdown()
				return fmt.Errorf("failed to start application: %w", err)
			}

			app.WaitForShutdown()
			app.Shutdown()
			return nil
		},
	}
}
