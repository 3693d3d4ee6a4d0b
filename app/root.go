// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "funnelforge",
	Short: "FunnelForge is a multi-tenant funnel building platform",
	Long: `FunnelForge is a multi-tenant funnel building platform.
It serves the JSON API, including authentication, organization management
and the permission system in front of every endpoint.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
