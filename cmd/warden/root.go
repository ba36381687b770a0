package main

import (
	"fmt"
	"os"

	"github.com/gameserverkit/warden/internal/config"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	cfgFile    string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Lifecycle and update manager for Hytale server instances",
	Long: `Warden supervises Hytale server instances: it allocates ports,
launches and monitors server processes, downloads and applies updates
with pre-update backups, and exposes a management API with live event
streams.

Examples:
  warden serve                       # Start the daemon
  warden status                      # Show instance status
  warden start alpha                 # Start an instance
  warden stop alpha --graceful       # Countdown, then stop
  warden update alpha --follow       # Update and watch progress
  warden update --all                # Update every instance
  warden logs alpha                  # Follow an instance's console`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to settings file")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Daemon API address (host:port)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(logsCmd)
}

// getConfigPath resolves the settings file path: --config flag, then the
// WARDEN_CONFIG env var, then the per-user default.
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}
