package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs [instance]",
	Short: "Show manager logs or follow an instance console",
	Long: `Without arguments, print the daemon's recent log lines. With an
instance name, follow that instance's console output live.

Examples:
  warden logs          # Daemon diagnostics
  warden logs alpha    # Follow alpha's console`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	ctx := cmd.Context()

	if len(args) == 0 {
		entries, err := client.Logs(ctx)
		if err != nil {
			fail(err)
		}
		for _, e := range entries {
			fmt.Printf("%s %-5s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Message)
		}
		return
	}

	if err := client.FollowConsole(ctx, args[0], printEvent); err != nil {
		fail(err)
	}
}
