package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		short, _ := cmd.Flags().GetBool("short")
		if short {
			fmt.Println(version)
		} else {
			fmt.Printf("warden v%s\n", version)
			fmt.Println("Lifecycle and update manager for Hytale server instances")
		}
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Show only version number")
}
