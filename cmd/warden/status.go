package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show instance status",
	Long: `Show all registered instances with their installed version, run state
and resource usage. With --updates, query the distribution service for
available updates instead.`,
	Run: runStatus,
}

func init() {
	statusCmd.Flags().Bool("updates", false, "Check for available updates")
}

func runStatus(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	ctx := cmd.Context()

	checkUpdates, _ := cmd.Flags().GetBool("updates")
	if checkUpdates {
		statuses, err := client.UpdateStatus(ctx)
		if err != nil {
			fail(err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tINSTALLED\tPATCHLINE\tLATEST\tUPDATE")
		for _, st := range statuses {
			note := "-"
			switch {
			case !st.Installed:
				note = "not installed"
			case st.Downgrade:
				note = "downgrade"
			case st.UpdateAvailable:
				note = "available"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				st.Name, st.CurrentVersion, st.Patchline, st.LatestVersion, note)
		}
		w.Flush()
		return
	}

	status, err := client.Status(ctx)
	if err != nil {
		fail(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tPATCHLINE\tSTATE\tUPTIME\tPORT\tCPU\tRSS")
	for _, inst := range status.Instances {
		state := "stopped"
		uptime, port, cpu, rss := "-", "-", "-", "-"
		if inst.Running {
			state = "running"
			uptime = formatUptime(inst.UptimeSeconds)
			port = fmt.Sprintf("%d", inst.Port)
			cpu = fmt.Sprintf("%.1f%%", inst.CPUPercent)
			rss = fmt.Sprintf("%dM", inst.MemoryRSS/(1024*1024))
		} else if !inst.Installed {
			state = "not installed"
		} else if inst.LastExitCode != nil && *inst.LastExitCode != 0 {
			state = fmt.Sprintf("crashed (%d)", *inst.LastExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.Name, inst.Version, inst.Patchline, state, uptime, port, cpu, rss)
	}
	w.Flush()

	if status.UpdateInProgress {
		fmt.Printf("\nupdate in progress: %s\n", status.UpdateJob)
	}
}
