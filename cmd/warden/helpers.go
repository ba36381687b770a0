package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gameserverkit/warden/internal/api"
	"github.com/gameserverkit/warden/internal/config"
	"github.com/gameserverkit/warden/internal/events"
)

// resolveServerAddr determines the daemon address: --server flag, then
// the WARDEN_SERVER env var, then the configured API listen address.
func resolveServerAddr() string {
	if serverAddr != "" {
		return serverAddr
	}
	if addr := os.Getenv("WARDEN_SERVER"); addr != "" {
		return addr
	}
	settings, err := config.Load(getConfigPath())
	if err != nil {
		return config.Defaults().API.Listen
	}
	return settings.API.Listen
}

// newAPIClient builds a client for the resolved daemon address.
func newAPIClient() *api.Client {
	return api.NewClient("http://" + resolveServerAddr())
}

// fail prints the error and exits nonzero.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// formatUptime renders seconds as 1h02m03s style text.
func formatUptime(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	return d.Truncate(time.Second).String()
}

// printEvent renders one stream event for the terminal.
func printEvent(e events.Event) {
	switch e.Kind {
	case events.KindLine:
		fmt.Println(e.Line)
	case events.KindProgress:
		fmt.Printf("%.1f%% (%s)\n", e.Percent, e.Detail)
	case events.KindTerminal:
		if e.Result != nil && !e.Result.Success {
			fmt.Fprintf(os.Stderr, "failed: %s\n", e.Result.Message)
		} else if e.Result != nil && e.Result.Message != "" {
			fmt.Println(e.Result.Message)
		}
	}
}
