// Package cmd provides the command-line interface: serving the application
// and resetting its database.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	var noColor bool

	serveCmd := newServeCmd()
	rootCmd := &cobra.Command{
		Use:   "ux-interviewer",
		Short: "UX interview backend",
		Long: `Backend for running AI-assisted user interviews.

Running without a subcommand starts the HTTP and WebSocket server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: serveCmd.RunE,
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newResetDBCmd())
	return rootCmd
}
