package main

import (
	"path/filepath"
	"testing"
)

func TestResolveServerAddrPrecedence(t *testing.T) {
	// Point config at an empty file so the fallback is pure defaults.
	t.Setenv("WARDEN_CONFIG", filepath.Join(t.TempDir(), "settings.yaml"))

	origFlag := serverAddr
	defer func() { serverAddr = origFlag }()

	serverAddr = "flag:1"
	t.Setenv("WARDEN_SERVER", "env:2")
	if got := resolveServerAddr(); got != "flag:1" {
		t.Errorf("with flag set = %q, want flag:1", got)
	}

	serverAddr = ""
	if got := resolveServerAddr(); got != "env:2" {
		t.Errorf("with env set = %q, want env:2", got)
	}

	t.Setenv("WARDEN_SERVER", "")
	if got := resolveServerAddr(); got != "127.0.0.1:8520" {
		t.Errorf("default = %q, want configured API listen", got)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{90, "1m30s"},
		{3723, "1h2m3s"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.seconds); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
