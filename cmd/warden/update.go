package main

import (
	"fmt"

	"github.com/gameserverkit/warden/internal/api"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [instance]",
	Short: "Update instances to the latest version",
	Long: `Update one instance, or every instance with --all. The daemon stops
the instance if it is running, takes a pre-update backup, installs the
new server files and restarts it.

Examples:
  warden update alpha                       # Update one instance
  warden update alpha --patchline pre-release
  warden update alpha --stage               # Stage for next start
  warden update --all                       # Update the whole fleet
  warden update --all --filter alpha,beta   # A subset of it`,
	Run: runUpdate,
}

var (
	updateAll       bool
	updatePatchline string
	updateGraceful  bool
	updateWarn      int
	updateStage     bool
	updateFilter    []string
	updateFollow    bool
)

func init() {
	updateCmd.Flags().BoolVar(&updateAll, "all", false, "Update every instance with an update available")
	updateCmd.Flags().StringVar(&updatePatchline, "patchline", "", "Patchline to update to (default: the instance's current one)")
	updateCmd.Flags().BoolVar(&updateGraceful, "graceful", false, "Warn players with a countdown before stopping")
	updateCmd.Flags().IntVar(&updateWarn, "warn-minutes", 0, "Countdown length in minutes (with --graceful)")
	updateCmd.Flags().BoolVar(&updateStage, "stage", false, "Stage the update for the next start instead of applying now")
	updateCmd.Flags().StringSliceVar(&updateFilter, "filter", nil, "Restrict --all to these instances")
	updateCmd.Flags().BoolVar(&updateFollow, "follow", true, "Stream update progress")
}

func runUpdate(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	ctx := cmd.Context()

	opts := api.UpdateOptions{
		Patchline:   updatePatchline,
		Graceful:    updateGraceful,
		WarnMinutes: updateWarn,
		Stage:       updateStage,
	}

	switch {
	case updateAll:
		if err := client.UpdateAll(ctx, updateFilter, opts); err != nil {
			fail(err)
		}
	case len(args) == 1:
		if err := client.Update(ctx, args[0], opts); err != nil {
			fail(err)
		}
	default:
		fail(fmt.Errorf("name an instance or pass --all"))
	}

	if !updateFollow {
		fmt.Println("update accepted")
		return
	}
	if err := client.FollowUpdate(ctx, printEvent); err != nil {
		fail(err)
	}
}
