package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <instance>",
	Short: "Start a server instance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := newAPIClient().Start(cmd.Context(), args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("started %s\n", args[0])
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <instance>",
	Short: "Stop a server instance",
	Long: `Stop a running server instance. With --graceful, players are warned
with a countdown broadcast before the server goes down.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		graceful, _ := cmd.Flags().GetBool("graceful")
		warn, _ := cmd.Flags().GetInt("warn-minutes")

		client := newAPIClient()
		var err error
		if graceful {
			err = client.GracefulStop(cmd.Context(), args[0], warn)
		} else {
			err = client.Stop(cmd.Context(), args[0])
		}
		if err != nil {
			fail(err)
		}
		fmt.Printf("stopped %s\n", args[0])
	},
}

var commandCmd = &cobra.Command{
	Use:   "command <instance> <text...>",
	Short: "Send a console command to a running instance",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		text := strings.Join(args[1:], " ")
		if err := newAPIClient().Command(cmd.Context(), args[0], text); err != nil {
			fail(err)
		}
	},
}

func init() {
	stopCmd.Flags().Bool("graceful", false, "Warn players with a countdown before stopping")
	stopCmd.Flags().Int("warn-minutes", 0, "Countdown length in minutes (with --graceful)")
}
